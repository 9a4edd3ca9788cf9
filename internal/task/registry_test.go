package task

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sayHello(ctx context.Context, args Args) (any, error) {
	return "hello", nil
}

func TestRegistryAdd(t *testing.T) {
	r := NewRegistry(testLogger())

	d, err := r.Add(Spec{
		Kind:     "setup",
		Function: sayHello,
		Args:     []any{1, "two"},
		Kwargs:   map[string]any{"three": 3},
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, d.ID)
	assert.Equal(t, KindInit, d.Kind)
	assert.Equal(t, Suspending, d.Mode)
	assert.Equal(t, "task.sayHello", d.Name)
	assert.Equal(t, 1, d.Args.Arg(0))
	assert.Equal(t, "two", d.Args.Arg(1))
	assert.Nil(t, d.Args.Arg(2))
	v, ok := d.Args.Kwarg("three")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	assert.Len(t, r.Get(KindInit), 1)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryAdd_CallEvery(t *testing.T) {
	r := NewRegistry(testLogger())

	d, err := r.Add(Spec{Kind: "periodic", Function: sayHello, CallEvery: 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d.Frequency, 1e-9)

	// An explicit frequency wins over call_every
	d, err = r.Add(Spec{Kind: "periodic", Function: sayHello, Frequency: 4, CallEvery: 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, d.Frequency, 1e-9)
}

func TestRegistryAdd_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr error
	}{
		{
			name:    "unknown kind",
			spec:    Spec{Kind: "sometimes", Function: sayHello},
			wantErr: ErrUnknownTaskKind,
		},
		{
			name:    "missing function",
			spec:    Spec{Kind: "init"},
			wantErr: ErrInvalidDescription,
		},
		{
			name:    "missing kind",
			spec:    Spec{Function: sayHello},
			wantErr: ErrInvalidDescription,
		},
		{
			name:    "periodic without frequency",
			spec:    Spec{Kind: "periodic", Function: sayHello},
			wantErr: ErrInvalidFrequency,
		},
		{
			name:    "periodic with negative frequency",
			spec:    Spec{Kind: "periodic", Function: sayHello, Frequency: -1},
			wantErr: ErrInvalidFrequency,
		},
		{
			name:    "monitor on init",
			spec:    Spec{Kind: "init", Function: sayHello, Monitor: true},
			wantErr: ErrInvalidDescription,
		},
		{
			name:    "frequency on continuous",
			spec:    Spec{Kind: "continuous", Function: sayHello, Frequency: 3},
			wantErr: ErrInvalidDescription,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(testLogger())
			_, err := r.Add(tt.spec)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, r.Len())
		})
	}
}

func TestRegistryAddAll_ContinuesPastInvalid(t *testing.T) {
	r := NewRegistry(testLogger())

	err := r.AddAll([]Spec{
		{Kind: "init", Function: sayHello, Name: "first"},
		{Kind: "nonsense", Function: sayHello},
		{Kind: "init", Function: sayHello, Name: "second"},
		{Kind: "cleanup", Function: sayHello, Name: "third"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTaskKind)
	assert.Contains(t, err.Error(), "task description 1")

	inits := r.Get(KindInit)
	require.Len(t, inits, 2)
	assert.Equal(t, "first", inits[0].Name)
	assert.Equal(t, "second", inits[1].Name)
	assert.Len(t, r.Get(KindCleanup), 1)
	assert.Equal(t, 3, r.Len())
}

func TestRegistryGet_ReturnsCopy(t *testing.T) {
	r := NewRegistry(testLogger())
	_, err := r.Add(Spec{Kind: "init", Function: sayHello, Name: "original"})
	require.NoError(t, err)

	got := r.Get(KindInit)
	got[0].Name = "changed"

	assert.Equal(t, "original", r.Get(KindInit)[0].Name)
	assert.Empty(t, r.Get(KindPeriodic))
}

func TestRegistryAddDescription(t *testing.T) {
	r := NewRegistry(testLogger())

	err := r.AddDescription(Description{Kind: KindInit, Fn: sayHello})
	assert.ErrorIs(t, err, ErrInvalidDescription)

	d, err := Periodic(sayHello, 5, WithMonitor(), WithBlocking(), WithName(" poller "))
	require.NoError(t, err)
	require.NoError(t, r.AddDescription(d))

	got := r.Get(KindPeriodic)
	require.Len(t, got, 1)
	assert.Equal(t, "poller", got[0].Name)
	assert.Equal(t, Blocking, got[0].Mode)
	assert.True(t, got[0].Monitor)
}

func TestDescriptionIDsAreUnique(t *testing.T) {
	a, err := Init(sayHello)
	require.NoError(t, err)
	b, err := Init(sayHello)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.Name, b.Name)
}
