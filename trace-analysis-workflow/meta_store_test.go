package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amitxsaroha/trcprof/trace-analysis-workflow/pkg/types"
)

func TestSummaryCodecRoundTrip(t *testing.T) {
	in := types.RunSummary{
		FirstTim:           1000000,
		LastTim:            9876543,
		BaselineOffset:     543,
		Divisor:            types.DivisorMicroseconds,
		OracleRelease:      19,
		LineCount:          123456,
		RecordCount:        98765,
		CursorCount:        42,
		DuplicateHeaders:   1,
		Truncated:          true,
		UnprocessedLines:   3,
		ZeroWaits:          17,
		PendingFoldedWaits: 2,
		PendingFoldedTicks: 800,
		ServiceName:        "SYS$USERS",
		SessionDate:        "2026-08-29 10:00:00.000",
		HasRPC:             true,
	}

	out, err := decodeSummary(encodeSummary(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSummaryCodecDefaults(t *testing.T) {
	out, err := decodeSummary(encodeSummary(types.RunSummary{}))
	require.NoError(t, err)
	assert.Equal(t, types.RunSummary{}, out)
}

func TestSummaryCodecIgnoresUnknownFields(t *testing.T) {
	out, err := decodeSummary("line_count=7\nfuture_field=anything\n")
	require.NoError(t, err)
	assert.Equal(t, int64(7), out.LineCount)
}

func TestSummaryCodecRejectsMalformedLine(t *testing.T) {
	_, err := decodeSummary("not a field line\n")
	assert.Error(t, err)
}

func TestSummaryCodecEscapesStrings(t *testing.T) {
	in := types.RunSummary{ServiceName: `svc\with\backslashes`}
	out, err := decodeSummary(encodeSummary(in))
	require.NoError(t, err)
	assert.Equal(t, in.ServiceName, out.ServiceName)
}
