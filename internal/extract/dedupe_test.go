package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/subwatch/internal/model"
)

func TestMerge(t *testing.T) {
	early := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("higher confidence wins", func(t *testing.T) {
		merged := Merge([]model.Candidate{
			{VendorKey: "netflix", Confidence: 0.6, AmountCents: int64Ptr(1299)},
			{VendorKey: "netflix", Confidence: 0.9, AmountCents: int64Ptr(1549)},
		})
		require.Len(t, merged, 1)
		assert.Equal(t, int64(1549), *merged[0].AmountCents)
	})

	t.Run("equal confidence picks more recent charge", func(t *testing.T) {
		merged := Merge([]model.Candidate{
			{VendorKey: "spotify", Confidence: 0.8, ChargeDate: &late},
			{VendorKey: "spotify", Confidence: 0.8, ChargeDate: &early},
			{VendorKey: "spotify", Confidence: 0.8},
		})
		require.Len(t, merged, 1)
		require.NotNil(t, merged[0].ChargeDate)
		assert.Equal(t, late, *merged[0].ChargeDate)
	})

	t.Run("dated candidate beats undated on a tie", func(t *testing.T) {
		merged := Merge([]model.Candidate{
			{VendorKey: "hulu", Confidence: 0.7},
			{VendorKey: "hulu", Confidence: 0.7, ChargeDate: &early},
		})
		require.Len(t, merged, 1)
		require.NotNil(t, merged[0].ChargeDate)
	})

	t.Run("preserves first seen order", func(t *testing.T) {
		merged := Merge([]model.Candidate{
			{VendorKey: "netflix", Confidence: 0.5},
			{VendorKey: "spotify", Confidence: 0.5},
			{VendorKey: "netflix", Confidence: 0.9},
			{VendorKey: "adobe", Confidence: 0.5},
		})
		require.Len(t, merged, 3)
		assert.Equal(t, "netflix", merged[0].VendorKey)
		assert.Equal(t, "spotify", merged[1].VendorKey)
		assert.Equal(t, "adobe", merged[2].VendorKey)
	})

	t.Run("idempotent", func(t *testing.T) {
		once := Merge([]model.Candidate{
			{VendorKey: "netflix", Confidence: 0.6, ChargeDate: &early},
			{VendorKey: "netflix", Confidence: 0.9, ChargeDate: &late},
			{VendorKey: "spotify", Confidence: 0.8},
		})
		twice := Merge(once)
		assert.Equal(t, once, twice)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Merge(nil))
	})
}
