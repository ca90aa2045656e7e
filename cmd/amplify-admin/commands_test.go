package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prn-tf/amplify-storage/internal/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "Version: dev")
}

func TestTiersCmd(t *testing.T) {
	out, err := execute(t, "tiers")
	require.NoError(t, err)

	var tiers []domain.StorageTier
	require.NoError(t, json.Unmarshal([]byte(out), &tiers))
	require.Len(t, tiers, 3)
	require.Equal(t, domain.TierFree, tiers[0].Name)
	require.Equal(t, domain.TierEnterprise, tiers[2].Name)
	require.Equal(t, 10*domain.MB, tiers[0].MaxFileSizeBytes)
}

func TestArgumentValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "reconcile needs user", args: []string{"reconcile"}, wantErr: "accepts 1 arg"},
		{name: "usage bad uuid", args: []string{"usage", "nope"}, wantErr: "invalid user id"},
		{name: "unknown tier", args: []string{"user", "create", "--tier", "platinum"}, wantErr: "unknown tier"},
		{name: "cleanup user bad uuid", args: []string{"cleanup", "user", "x"}, wantErr: "invalid user id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
