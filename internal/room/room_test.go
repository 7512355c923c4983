package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsValid(t *testing.T) {
	for range 100 {
		id := NewID()
		assert.Len(t, id, IDLength)

		got, err := Validate(id)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "upper", input: "AB12", want: "AB12"},
		{name: "lower is normalized", input: "ab12", want: "AB12"},
		{name: "surrounding space", input: "  xy9z \n", want: "XY9Z"},
		{name: "empty", input: "   ", wantErr: true},
		{name: "punctuation", input: "AB-12", wantErr: true},
		{name: "too long", input: "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoleOpposite(t *testing.T) {
	assert.Equal(t, Responder, Initiator.Opposite())
	assert.Equal(t, Initiator, Responder.Opposite())
	assert.True(t, Initiator.Valid())
	assert.False(t, Role("observer").Valid())
}

func TestNewRoomNormalizesID(t *testing.T) {
	r := New("ab12", Responder)
	assert.Equal(t, "AB12", r.ID)
	assert.Equal(t, StateCreated, r.State)
	assert.Equal(t, "created", r.State.String())
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: " ab12 ", want: "AB12"},
		{input: "https://roomdrop.qzz.io/r/xy34", want: "XY34"},
		{input: "https://roomdrop.qzz.io/r/XY34/", want: "XY34"},
		{input: "http://localhost:8080/?room=cd56", want: "CD56"},
		{input: "https://roomdrop.qzz.io/", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseInput(tt.input)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidID, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got)
	}
}
