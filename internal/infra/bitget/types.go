package bitget

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

const (
	actionSnapshot = "snapshot"
	actionUpdate   = "update"
)

// subscribeRequest Structure
type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

type subscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstId   string `json:"instId"`
}

// booksResponse is a v2 public books push. books carries a snapshot followed
// by incremental updates; books5/books15 push snapshots only.
type booksResponse struct {
	Event  string          `json:"event"` // subscribe, error
	Code   json.RawMessage `json:"code"`  // number or string
	Msg    string          `json:"msg"`
	Action string          `json:"action"` // snapshot, update
	Arg    subscribeArg    `json:"arg"`
	Data   []booksData     `json:"data"`
	Ts     int64           `json:"ts"`
}

type booksData struct {
	Asks     [][2]decimal.Decimal `json:"asks"` // [price, size]
	Bids     [][2]decimal.Decimal `json:"bids"`
	Checksum int64                `json:"checksum"`
	Seq      uint64               `json:"seq"`
	Ts       string               `json:"ts"`
}
