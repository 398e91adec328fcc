package projects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnums(t *testing.T) {
	assert.Len(t, validStatuses, 13)
	assert.True(t, StatusOperational.Valid())
	assert.True(t, StatusOnHold.Valid())
	assert.False(t, ProjectStatus("operational").Valid())

	assert.True(t, TypeUtilityScale.Valid())
	assert.False(t, ProjectType("HOME").Valid())

	assert.Len(t, validSources, 17)
	assert.True(t, SourcePumpedStorageHydro.Valid())
	assert.False(t, EnergySource("COAL").Valid())
}

func TestDecodeUpdate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
		check   func(t *testing.T, u ProjectUpdate)
	}{
		{
			name:  "status and progress",
			input: `{"status":"OPERATIONAL","progress":100}`,
			check: func(t *testing.T, u ProjectUpdate) {
				require.NotNil(t, u.Status)
				assert.Equal(t, StatusOperational, *u.Status)
				assert.Equal(t, 100, *u.Progress)
				assert.Nil(t, u.Name)
			},
		},
		{
			name:  "explicit false is kept",
			input: `{"isActive":false}`,
			check: func(t *testing.T, u ProjectUpdate) {
				require.NotNil(t, u.IsActive)
				assert.False(t, *u.IsActive)
			},
		},
		{
			name:  "zero capacity is allowed",
			input: `{"systemCapacity":0}`,
			check: func(t *testing.T, u ProjectUpdate) {
				require.NotNil(t, u.SystemCapacity)
				assert.Zero(t, *u.SystemCapacity)
			},
		},
		{name: "unknown field", input: `{"ownerId":"someone-else"}`, wantErr: "unknown field"},
		{name: "wrong type", input: `{"progress":"half"}`, wantErr: "invalid project update"},
		{name: "empty object", input: `{}`, wantErr: "no fields to update"},
		{name: "null", input: `null`, wantErr: "no fields to update"},
		{name: "unknown status", input: `{"status":"DONE"}`, wantErr: "unknown status"},
		{name: "negative capacity", input: `{"systemCapacity":-1}`, wantErr: "systemCapacity"},
		{name: "negative cost", input: `{"estimatedCost":-5}`, wantErr: "estimatedCost"},
		{name: "negative generation", input: `{"estimatedGeneration":-5}`, wantErr: "estimatedGeneration"},
		{name: "progress over 100", input: `{"progress":101}`, wantErr: "progress"},
		{name: "empty name", input: `{"name":""}`, wantErr: "name must be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := DecodeUpdate([]byte(tt.input))
			if tt.wantErr != "" {
				assert.ErrorIs(t, err, ErrInvalidUpdate)
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, u)
		})
	}
}
