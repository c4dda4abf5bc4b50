package mcpserver

// SnapshotFormatContract describes the on-disk safeguard cache so that
// consumers can read snapshot files without going through the wallet.
const SnapshotFormatContract = `# Safeguard Snapshot Format

The safeguard cache holds one snapshot per calendar day (UTC) of recent block
headers fetched from the remote node.

## Files

- Directory: ` + "`" + `<data_dir>/safeguard` + "`" + ` unless ` + "`" + `safeguard.dir` + "`" + ` overrides it.
- One file per day: ` + "`" + `DD-MM-YYYY.snapshot` + "`" + ` (e.g. ` + "`" + `08-03-2024.snapshot` + "`" + `).
- Files named ` + "`" + `DD-MM-YYYY.messagepack` + "`" + ` come from older clients and are read the same way.
- Hidden ` + "`" + `.safeguard-tmp-*` + "`" + ` files are writes in progress. Ignore them.
- File names do NOT sort chronologically as strings. Parse the day to order them.
- A file is complete once it has its final name; it is never modified afterwards.

## Which day is cached

The wallet caches the day of ` + "`" + `now - 43h12m` + "`" + ` (1.8 days). A missing file for that
day triggers a fetch; an existing one is never refetched.

## Encoding

MessagePack map with a single key:

` + "```" + `
{ "data": [ BlockHeader, ... ] }
` + "```" + `

BlockHeader keys: ` + "`" + `ver` + "`" + `, ` + "`" + `height` + "`" + `, ` + "`" + `hash` + "`" + `, ` + "`" + `prev` + "`" + `, ` + "`" + `merkle` + "`" + `, ` + "`" + `lock` + "`" + `, ` + "`" + `ts` + "`" + `, ` + "`" + `txs` + "`" + `.

Transaction keys: ` + "`" + `id` + "`" + `, ` + "`" + `ver` + "`" + `, ` + "`" + `mix` + "`" + `, ` + "`" + `vin` + "`" + ` (` + "`" + `k` + "`" + ` key image, ` + "`" + `o` + "`" + ` offsets),
` + "`" + `vout` + "`" + ` (` + "`" + `a c e l n p s t` + "`" + `; ` + "`" + `p` + "`" + ` is the one-time output key, ` + "`" + `c` + "`" + ` the commitment).

## Reading

Use the file for the latest day only. ` + "`" + `get_cached_transactions` + "`" + ` returns its
transactions flattened across headers in random order; do not rely on the order.
`
