package pkgs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConstraint(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Constraint
		wantErr bool
	}{
		{
			name:  "empty means any",
			input: "",
			want:  Constraint{Kind: ConstraintAny},
		},
		{
			name:  "latest",
			input: "latest",
			want:  Constraint{Kind: ConstraintLatest},
		},
		{
			name:  "exact with equals",
			input: "=1.2.3",
			want:  Constraint{Kind: ConstraintExact, Version: "1.2.3"},
		},
		{
			name:  "bare version is exact",
			input: "1.2.3",
			want:  Constraint{Kind: ConstraintExact, Version: "1.2.3"},
		},
		{
			name:    "equals without version",
			input:   "=",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConstraint(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConstraintMatches(t *testing.T) {
	tests := []struct {
		name       string
		constraint Constraint
		version    Version
		want       Match
	}{
		{
			name:       "any matches everything",
			constraint: Constraint{Kind: ConstraintAny},
			version:    "0.0.1",
			want:       MatchTrue,
		},
		{
			name:       "latest is undecided",
			constraint: Constraint{Kind: ConstraintLatest},
			version:    "9.9.9",
			want:       MatchUndecided,
		},
		{
			name:       "exact match",
			constraint: Constraint{Kind: ConstraintExact, Version: "1.0.0"},
			version:    "1.0.0",
			want:       MatchTrue,
		},
		{
			name:       "exact mismatch",
			constraint: Constraint{Kind: ConstraintExact, Version: "1.0.0"},
			version:    "1.0.1",
			want:       MatchFalse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.constraint.Matches(tt.version))
		})
	}
}

func TestDependencyParse(t *testing.T) {
	name, c, err := Dependency("openssl =3.0.1").Parse()
	require.NoError(t, err)
	assert.Equal(t, Name("openssl"), name)
	assert.True(t, c.Matches("3.0.1").IsTrue())
	assert.True(t, c.Matches("3.0.2").IsFalse())

	name, c, err = Dependency("zlib").Parse()
	require.NoError(t, err)
	assert.Equal(t, Name("zlib"), name)
	assert.Equal(t, ConstraintAny, c.Kind)

	_, _, err = Dependency("a b c").Parse()
	require.Error(t, err)
}

func TestEnvHashStable(t *testing.T) {
	a := EnvHash(map[string]string{"A": "1", "B": "2"})
	b := EnvHash(map[string]string{"B": "2", "A": "1"})
	assert.Equal(t, a, b)

	c := EnvHash(map[string]string{"A": "1", "B": "3"})
	assert.NotEqual(t, a, c)

	assert.NotEmpty(t, EnvHash(nil))
}
