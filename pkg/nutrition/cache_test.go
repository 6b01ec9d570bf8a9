package nutrition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCachedEstimator_HitsAndNormalization(t *testing.T) {
	inner := &mockEstimator{}
	inner.On("Estimate", mock.Anything, "Two eggs").Return(Estimate{Calories: 140}, nil).Once()

	c := NewCachedEstimator(inner, 8, time.Minute)

	for _, desc := range []string{"Two eggs", "two  eggs", " TWO EGGS "} {
		est, err := c.Estimate(context.Background(), desc)
		require.NoError(t, err)
		assert.Equal(t, 140, est.Calories)
	}

	inner.AssertNumberOfCalls(t, "Estimate", 1)
	assert.Equal(t, 1, c.Len())
}

func TestCachedEstimator_Expiry(t *testing.T) {
	inner := &mockEstimator{}
	inner.On("Estimate", mock.Anything, "rice").Return(Estimate{Calories: 200}, nil).Twice()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCachedEstimator(inner, 8, time.Minute)
	c.now = func() time.Time { return now }

	_, err := c.Estimate(context.Background(), "rice")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = c.Estimate(context.Background(), "rice")
	require.NoError(t, err)

	inner.AssertExpectations(t)
}

func TestCachedEstimator_ErrorsNotCached(t *testing.T) {
	inner := &mockEstimator{}
	inner.On("Estimate", mock.Anything, "soup").Return(Estimate{}, errors.New("rate limited")).Once()
	inner.On("Estimate", mock.Anything, "soup").Return(Estimate{Calories: 90}, nil).Once()

	c := NewCachedEstimator(inner, 0, 0)

	_, err := c.Estimate(context.Background(), "soup")
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())

	est, err := c.Estimate(context.Background(), "soup")
	require.NoError(t, err)
	assert.Equal(t, 90, est.Calories)
}

func TestCachedEstimator_Eviction(t *testing.T) {
	inner := &mockEstimator{}
	inner.On("Estimate", mock.Anything, mock.Anything).Return(Estimate{Calories: 1}, nil)

	c := NewCachedEstimator(inner, 2, time.Minute)
	for _, desc := range []string{"a", "b", "c"} {
		_, err := c.Estimate(context.Background(), desc)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.Len())
}
