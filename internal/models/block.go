// Package models defines the domain types for safeguard.
package models

// HeaderList is the framing shared by the remote safeguard route and the
// cache files: a single-field envelope around the fetched headers.
type HeaderList struct {
	Data []BlockHeader `codec:"data" json:"data"`
}

// BlockHeader is a block header as served by the remote node. Only
// Transactions is interpreted here; the rest is carried through as-is.
type BlockHeader struct {
	Version       uint32        `codec:"ver" json:"version"`
	Height        uint64        `codec:"height" json:"height"`
	Hash          string        `codec:"hash" json:"hash"`
	PrevBlockHash string        `codec:"prev" json:"prev_block_hash"`
	MerkleRoot    string        `codec:"merkle" json:"merkle_root"`
	Locktime      int64         `codec:"lock" json:"locktime"`
	Timestamp     int64         `codec:"ts" json:"timestamp"`
	Transactions  []Transaction `codec:"txs" json:"transactions"`
}

// Transaction is a confidential transaction as stored in a block.
type Transaction struct {
	TxnID   string `codec:"id" json:"txn_id"`
	Version uint32 `codec:"ver" json:"version"`
	Mix     int32  `codec:"mix" json:"mix"`
	Vin     []Vin  `codec:"vin" json:"vin"`
	Vout    []Vout `codec:"vout" json:"vout"`
}

// Vin references the key image spent by an input.
type Vin struct {
	KeyImage string `codec:"k" json:"key_image"`
	Offsets  string `codec:"o" json:"offsets"`
}

// Vout is a one-time output. P is the stealth output key recovery scanning
// matches on; C is the Pedersen commitment.
type Vout struct {
	A uint64 `codec:"a" json:"a"`
	C string `codec:"c" json:"c"`
	E string `codec:"e" json:"e"`
	L int64  `codec:"l" json:"l"`
	N string `codec:"n" json:"n"`
	P string `codec:"p" json:"p"`
	S string `codec:"s" json:"s"`
	T int32  `codec:"t" json:"t"`
}

// Transactions flattens the transactions of every header in order.
func (l HeaderList) Transactions() []Transaction {
	n := 0
	for _, h := range l.Data {
		n += len(h.Transactions)
	}
	out := make([]Transaction, 0, n)
	for _, h := range l.Data {
		out = append(out, h.Transactions...)
	}
	return out
}
