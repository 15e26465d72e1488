package store_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/contestguard/harvester/internal/store"
	mockstore "github.com/contestguard/harvester/internal/store/mock"
)

func fastBackoff() retry.Backoff {
	b := retry.NewConstant(time.Millisecond * 10)
	b = retry.WithMaxRetries(3, b)
	return b
}

func TestRetryExists(t *testing.T) {
	t.Run("NoError", func(t *testing.T) {
		ctx := context.Background()

		ctrl := gomock.NewController(t)
		s := mockstore.NewMockStore(ctrl)

		s.EXPECT().Exists(gomock.Any(), gomock.Eq("questions.json")).Return(true, nil).Times(1)

		r := store.NewRetryStore(s)
		actual, err := r.Exists(ctx, "questions.json")

		require.NoError(t, err, "failed to check existence")
		assert.True(t, actual, "did not get expected")
	})

	t.Run("ErrorAfter1Try", func(t *testing.T) {
		ctx := context.Background()

		ctrl := gomock.NewController(t)
		s := mockstore.NewMockStore(ctrl)

		counter := new(int)
		s.EXPECT().
			Exists(gomock.Any(), gomock.Eq("questions.json")).
			DoAndReturn(func(_ context.Context, _ string) (bool, error) {
				*counter++
				if *counter == 2 {
					return true, nil
				}

				return false, errors.New("expected error")
			}).
			Times(2)

		r := store.NewRetryStoreBackoff(s, fastBackoff)
		actual, err := r.Exists(ctx, "questions.json")

		require.NoError(t, err, "failed to check existence")
		assert.True(t, actual, "did not get expected")
	})

	t.Run("Error", func(t *testing.T) {
		ctx := context.Background()

		ctrl := gomock.NewController(t)
		s := mockstore.NewMockStore(ctrl)

		s.EXPECT().
			Exists(gomock.Any(), gomock.Eq("questions.json")).
			Return(false, errors.New("expected error")).
			Times(4)

		r := store.NewRetryStoreBackoff(s, fastBackoff)
		_, err := r.Exists(ctx, "questions.json")

		require.Error(t, err, "somehow checked existence")
	})
}

func TestRetryWrite(t *testing.T) {
	t.Run("RewindsSeekablePayload", func(t *testing.T) {
		ctx := context.Background()

		ctrl := gomock.NewController(t)
		s := mockstore.NewMockStore(ctrl)

		counter := new(int)
		s.EXPECT().
			Write(gomock.Any(), gomock.Eq("submissions/1.json"), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, reader io.Reader) error {
				*counter++
				if *counter == 2 {
					content, err := io.ReadAll(reader)
					require.NoError(t, err, "failed to read payload")
					assert.Equal(t, "[]", string(content), "payload not rewound before retry")
					return nil
				}

				_, _ = io.Copy(io.Discard, reader)
				return errors.New("expected error")
			}).
			Times(2)

		r := store.NewRetryStoreBackoff(s, fastBackoff)
		err := r.Write(ctx, "submissions/1.json", strings.NewReader("[]"))

		require.NoError(t, err, "failed to write entry")
	})

	t.Run("PlainReaderGetsOneAttempt", func(t *testing.T) {
		ctx := context.Background()

		ctrl := gomock.NewController(t)
		s := mockstore.NewMockStore(ctrl)

		s.EXPECT().
			Write(gomock.Any(), gomock.Eq("submissions/1.json"), gomock.Any()).
			Return(errors.New("expected error")).
			Times(1)

		r := store.NewRetryStoreBackoff(s, fastBackoff)
		err := r.Write(ctx, "submissions/1.json", io.MultiReader(strings.NewReader("[]")))

		require.Error(t, err, "somehow wrote entry")
	})
}

func TestRetryGlob(t *testing.T) {
	t.Run("ErrorAfter1Try", func(t *testing.T) {
		ctx := context.Background()
		expected := []string{"codes/1/py3/1:alice:42.py3"}

		ctrl := gomock.NewController(t)
		s := mockstore.NewMockStore(ctrl)

		counter := new(int)
		s.EXPECT().
			Glob(gomock.Any(), gomock.Eq("codes/1/*/*")).
			DoAndReturn(func(_ context.Context, _ string) ([]string, error) {
				*counter++
				if *counter == 2 {
					return expected, nil
				}

				return nil, errors.New("expected error")
			}).
			Times(2)

		r := store.NewRetryStoreBackoff(s, fastBackoff)
		actual, err := r.Glob(ctx, "codes/1/*/*")

		require.NoError(t, err, "failed to glob entries")
		assert.Equal(t, expected, actual, "did not get expected")
	})
}
