package candle

import (
	"github.com/shopspring/decimal"
)

// Placeholder low for freshly allocated buckets. Deliberately larger than any
// plausible price so the first real tick always wins the min comparison.
var placeholderLow = decimal.New(1, 13)

// Aggregate turns a time-ordered tick series into a gap-free candle series.
//
// The series starts at the first tick's timestamp, not at the requested
// window start, and ends at min(rangeEnd, now). Buckets with no ticks are
// forward-filled from the previous bucket's close with zero volume, so charts
// stay continuous through quiet stretches. A bucket entered mid-series opens
// at the prior bucket's close. Callers must not mistake a zero-volume
// forward-filled candle for a real trade.
func Aggregate(ticks []Tick, rangeEnd, interval, now int64) []Candle {
	if len(ticks) == 0 || interval <= 0 {
		return nil
	}

	start := ticks[0].Dt
	end := rangeEnd
	if now < end {
		end = now
	}
	if end <= start {
		return nil
	}

	n := int((end - start + interval - 1) / interval)
	res := make([]Candle, n)
	for i := range res {
		res[i] = Candle{
			Time:   start + int64(i)*interval,
			Low:    placeholderLow,
			Open:   decimal.Zero,
			High:   decimal.Zero,
			Close:  decimal.Zero,
			Volume: decimal.Zero,
		}
	}

	first := ticks[0].Bid
	res[0].Open = first
	res[0].Close = first
	res[0].High = first
	res[0].Low = first

	cur := 0
	high := first
	low := first
	for _, tk := range ticks {
		id := int((tk.Dt - start) / interval)
		if id < 0 {
			continue
		}
		if id >= n {
			break // ticks are ascending; everything past end is out of range
		}
		if id != cur {
			// Forward-fill the skipped buckets and open the new one at the
			// previous close.
			fill := res[cur].Close
			for i := cur + 1; i <= id; i++ {
				res[i].Open = fill
				res[i].Close = fill
				res[i].High = fill
				res[i].Low = fill
			}
			res[id].Volume = decimal.Zero
			high = tk.Bid
			low = tk.Bid
			cur = id
		}
		res[cur].Close = tk.Bid
		if high.LessThan(tk.Bid) {
			high = tk.Bid
		}
		if low.GreaterThan(tk.Bid) {
			low = tk.Bid
		}
		res[cur].Volume = res[cur].Volume.Add(tk.BidVolume).Add(tk.AskVolume)
		res[cur].High = high
		res[cur].Low = low
	}

	// Trailing buckets after the last tick.
	fill := res[cur].Close
	for i := cur + 1; i < n; i++ {
		res[i].Open = fill
		res[i].Close = fill
		res[i].High = fill
		res[i].Low = fill
	}

	return res
}
