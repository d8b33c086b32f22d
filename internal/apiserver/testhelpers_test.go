package apiserver

import (
	"fmt"
	"strings"
	"time"

	"github.com/stellar-fee-tracker/insights-service/internal/feesample"
)

func feesampleAt(fee int64, ts time.Time) feesample.Sample {
	return feesample.Sample{
		FeeAmount:     fee,
		Timestamp:     ts,
		TransactionID: fmt.Sprintf("tx-%d", ts.UnixNano()),
		Sequence:      uint64(ts.UnixNano()),
	}
}

func jsonBody(s string) *strings.Reader {
	return strings.NewReader(s)
}
