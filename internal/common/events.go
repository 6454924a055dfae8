package common

import "time"

// IndexingExecutionEvent is emitted once per fill (§6). A single crank
// event may emit several of these if the queued quantity walks through
// multiple maker orders in one price level.
type IndexingExecutionEvent struct {
	MakerAccountKey AccountKey
	TakerAccountKey AccountKey
	Price           uint64 // raw, canonical D-decimal units
	Qty             uint64
	TimestampSecs   int64
}

// IndexingFinalizeEvent is emitted once per order finalization, whether
// from normal completion or cancellation.
type IndexingFinalizeEvent struct {
	AccountKey    AccountKey
	OriginalQty   uint64
	Price         uint64
	TimestampSecs int64
}

// PriceUpdateEvent is emitted when the top-of-book changes (§6).
type PriceUpdateEvent struct {
	InstrumentType       string
	QuoteType            string
	MaxBid               uint64
	BidSize              uint64
	MinAsk               uint64
	AskSize              uint64
	TimestampMicroSeconds int64
}

// Sink is the event-consumer contract the matching engine writes into. A
// hosting platform implements this to fan events out to its own indexer;
// the core never assumes a concrete transport.
type Sink interface {
	Execution(IndexingExecutionEvent)
	Finalize(IndexingFinalizeEvent)
	PriceUpdate(PriceUpdateEvent)
}

// NopSink discards every event; useful in tests that only assert on book
// state and don't care about the indexing stream.
type NopSink struct{}

func (NopSink) Execution(IndexingExecutionEvent) {}
func (NopSink) Finalize(IndexingFinalizeEvent)   {}
func (NopSink) PriceUpdate(PriceUpdateEvent)     {}

// RecordingSink accumulates events in memory, which is what the test suite
// and the CLI demo server use to inspect what the engine actually emitted.
type RecordingSink struct {
	Executions []IndexingExecutionEvent
	Finalizes  []IndexingFinalizeEvent
	Prices     []PriceUpdateEvent
}

func (r *RecordingSink) Execution(e IndexingExecutionEvent) { r.Executions = append(r.Executions, e) }
func (r *RecordingSink) Finalize(e IndexingFinalizeEvent)   { r.Finalizes = append(r.Finalizes, e) }
func (r *RecordingSink) PriceUpdate(e PriceUpdateEvent)     { r.Prices = append(r.Prices, e) }

// NowSecs and NowMicros exist so callers in non-test code have one place to
// stamp timestamps; tests construct events directly and never call these.
func NowSecs() int64   { return time.Now().Unix() }
func NowMicros() int64 { return time.Now().UnixMicro() }
