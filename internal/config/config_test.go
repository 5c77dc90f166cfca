package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/victornm/chattrivia/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Trivia struct {
		QuestionTimeout time.Duration
		DefaultRounds   int
	}

	Redis struct {
		Addrs []string
	}
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		file   string
		env    map[string]string
		assert func(t *testing.T, c testConfig, err error)
	}{
		"should keep the defaults missing from the file": {
			file: "http:\n  port: 8081\n",
			assert: func(t *testing.T, c testConfig, err error) {
				require.NoError(t, err)
				require.EqualValues(t, 8081, c.HTTP.Port)
				require.Equal(t, 20*time.Second, c.Trivia.QuestionTimeout)
				require.Equal(t, 10, c.Trivia.DefaultRounds)
			},
		},

		"should parse durations and lists": {
			file: "trivia:\n  questiontimeout: 5s\nredis:\n  addrs: [\"a:6379\", \"b:6379\"]\n",
			assert: func(t *testing.T, c testConfig, err error) {
				require.NoError(t, err)
				require.Equal(t, 5*time.Second, c.Trivia.QuestionTimeout)
				require.Equal(t, []string{"a:6379", "b:6379"}, c.Redis.Addrs)
			},
		},

		"should override the file with the environment": {
			file: "trivia:\n  defaultrounds: 3\n",
			env: map[string]string{
				"TRIVIA_DEFAULTROUNDS":   "7",
				"TRIVIA_QUESTIONTIMEOUT": "1m",
			},
			assert: func(t *testing.T, c testConfig, err error) {
				require.NoError(t, err)
				require.Equal(t, 7, c.Trivia.DefaultRounds)
				require.Equal(t, time.Minute, c.Trivia.QuestionTimeout)
			},
		},

		"should fail on malformed file": {
			file: "http: [",
			assert: func(t *testing.T, _ testConfig, err error) {
				require.Error(t, err)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			p := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(p, []byte(tt.file), 0o600))

			var c testConfig
			c.HTTP.Port = 8080
			c.Trivia.QuestionTimeout = 20 * time.Second
			c.Trivia.DefaultRounds = 10

			err := config.Load(p, &c)

			tt.assert(t, c, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var c testConfig
	require.Error(t, config.Load(filepath.Join(t.TempDir(), "missing.yaml"), &c))
}
