package analyzers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/auditmysite/internal/models"
)

func TestRateVital(t *testing.T) {
	tests := []struct {
		metric string
		value  float64
		want   models.MetricRating
	}{
		{"fcp", 1800, models.RatingGood},
		{"fcp", 2500, models.RatingNeedsImprovement},
		{"fcp", 3001, models.RatingPoor},
		{"lcp", 2500, models.RatingGood},
		{"lcp", 4000, models.RatingNeedsImprovement},
		{"lcp", 4500, models.RatingPoor},
		{"cls", 0.05, models.RatingGood},
		{"cls", 0.2, models.RatingNeedsImprovement},
		{"cls", 0.3, models.RatingPoor},
		{"inp", 150, models.RatingGood},
		{"ttfb", 900, models.RatingNeedsImprovement},
		{"fid", 50, models.RatingGood},
		{"tbt", 700, models.RatingPoor},
		{"si", 3400, models.RatingGood},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, rateVital(tt.metric, tt.value),
			"%s=%v", tt.metric, tt.value)
	}
}

func TestBuildPerformanceSection_AllGood(t *testing.T) {
	section := buildPerformanceSection(vitalsSample{
		FCP: 1000, LCP: 2000, CLS: 0.05, INP: 100,
		TTFB: 500, FID: 50, TBT: 100, SI: 3000,
	})

	assert.Equal(t, 100, section.Score)
	assert.Equal(t, "A", section.Grade)
	require.NotNil(t, section.LCP)
	assert.Equal(t, models.RatingGood, section.LCP.Rating)
}

func TestBuildPerformanceSection_MixedRatings(t *testing.T) {
	// good=100, needs-improvement=60, poor=20; mean of the three is 60
	section := buildPerformanceSection(vitalsSample{
		FCP: 1000, LCP: 3000, CLS: 0.5,
		INP: -1, TTFB: -1, FID: -1, TBT: -1, SI: -1,
	})

	assert.Equal(t, 60, section.Score)
	assert.Equal(t, "D", section.Grade)
	assert.Nil(t, section.INP, "unobserved metrics are absent")
	assert.Nil(t, section.SI)
}

func TestBuildPerformanceSection_NoMetrics(t *testing.T) {
	section := buildPerformanceSection(vitalsSample{
		FCP: -1, LCP: -1, CLS: -1, INP: -1,
		TTFB: -1, FID: -1, TBT: -1, SI: -1,
	})

	assert.Equal(t, 0, section.Score)
	assert.Equal(t, "F", section.Grade)
	assert.Nil(t, section.FCP)
}

func TestBuildPerformanceSection_ZeroCLSIsObserved(t *testing.T) {
	section := buildPerformanceSection(vitalsSample{
		FCP: -1, LCP: -1, CLS: 0, INP: -1,
		TTFB: -1, FID: -1, TBT: -1, SI: -1,
	})

	require.NotNil(t, section.CLS)
	assert.Equal(t, models.RatingGood, section.CLS.Rating)
	assert.Equal(t, 100, section.Score)
}
