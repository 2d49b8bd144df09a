package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithSubject(t *testing.T) {
	cause := stderrors.New("connection reset")

	tests := []struct {
		name         string
		err          error
		wantCategory Category
		wantSubject  string
		wantCause    error
	}{
		{
			name:         "unclassified becomes transient",
			err:          cause,
			wantCategory: CategoryTransientStorage,
			wantSubject:  "user-1",
			wantCause:    cause,
		},
		{
			name:         "wrapped unclassified becomes transient",
			err:          fmt.Errorf("write profile: %w", cause),
			wantCategory: CategoryTransientStorage,
			wantSubject:  "user-1",
			wantCause:    cause,
		},
		{
			name:         "existing subject is kept",
			err:          NotFound("get_profile", "user-2"),
			wantCategory: CategoryNotFound,
			wantSubject:  "user-2",
		},
		{
			name:         "missing subject is filled in",
			err:          ContentOptimization("image", cause),
			wantCategory: CategoryContentOptimization,
			wantSubject:  "user-1",
			wantCause:    cause,
		},
		{
			name:         "classified error behind a wrapper",
			err:          fmt.Errorf("store: %w", Conflict("insert_profile", "")),
			wantCategory: CategoryConflict,
			wantSubject:  "user-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WithSubject(tt.err, "optimize", "user-1")
			require.Error(t, got)

			var e *Error
			require.True(t, stderrors.As(got, &e))
			assert.Equal(t, tt.wantCategory, e.Category)
			assert.Equal(t, "optimize", e.Op)
			assert.Equal(t, tt.wantSubject, e.SubjectID)
			if tt.wantCause != nil {
				assert.True(t, stderrors.Is(got, tt.wantCause))
			}
		})
	}
}

func TestWithSubjectDoesNotMutateOriginal(t *testing.T) {
	orig := NotFound("get_profile", "")
	_ = WithSubject(orig, "optimize", "user-1")
	assert.Equal(t, "get_profile", orig.Op)
	assert.Empty(t, orig.SubjectID)
}

func TestWithSubjectNil(t *testing.T) {
	assert.NoError(t, WithSubject(nil, "optimize", "user-1"))
}

func TestPredicates(t *testing.T) {
	cause := stderrors.New("boom")
	assert.True(t, IsNotFound(NotFound("get", "a")))
	assert.True(t, IsInvalidInput(InvalidInput("get", "a", "bad", nil)))
	assert.True(t, IsTransient(fmt.Errorf("x: %w", TransientStorage("get", "a", cause))))
	assert.True(t, IsConflict(Conflict("insert", "a")))
	assert.False(t, IsNotFound(cause))

	c, ok := CategoryOf(cause)
	assert.False(t, ok)
	assert.Equal(t, CategoryInternal, c)

	assert.True(t, TransientStorage("get", "a", cause).IsRetryable())
	assert.False(t, NotFound("get", "a").IsRetryable())
}

func TestErrorMessage(t *testing.T) {
	err := InvalidInput("record_metrics", "user-1", "invalid metrics", stderrors.New("fcp < 0"))
	assert.Equal(t, "[invalid_input] record_metrics (subject user-1): invalid metrics: fcp < 0", err.Error())
	assert.Equal(t, "[internal] sweep", (&Error{Op: "sweep"}).Error())
}
