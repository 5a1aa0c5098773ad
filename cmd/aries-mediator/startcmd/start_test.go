/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"
	spi "github.com/hyperledger/aries-framework-go/spi/log"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-mediator-go/pkg/controller/rest/mediator"
)

type mockServer struct {
	serve func(handler http.Handler)
	err   error
}

func (s *mockServer) ListenAndServe(host string, handler http.Handler, certFile, keyFile string) error {
	if s.serve != nil {
		s.serve(handler)
	}

	return s.err
}

func TestStartCmdContents(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	require.Equal(t, "start", startCmd.Use)
	require.Equal(t, "Start a mediator", startCmd.Short)
	require.Equal(t, "Start an Aries DIDComm mediator and its admin API", startCmd.Long)

	checkFlagPropertiesCorrect(t, startCmd, apiHostFlagName, apiHostFlagShorthand, apiHostFlagUsage, "")
	checkFlagPropertiesCorrect(t, startCmd, inboundHostFlagName,
		inboundHostFlagShorthand, inboundHostFlagUsage, "[]")
	checkFlagPropertiesCorrect(t, startCmd, databaseTypeFlagName, databaseTypeFlagShorthand, databaseTypeFlagUsage, "")
	checkFlagPropertiesCorrect(t, startCmd, routingKeysFlagName, routingKeysFlagShorthand, routingKeysFlagUsage, "[]")
	checkFlagPropertiesCorrect(t, startCmd, mailboxTypeFlagName, "", mailboxTypeFlagUsage, "")
}

func checkFlagPropertiesCorrect(t *testing.T, cmd *cobra.Command, flagName,
	flagShorthand, flagUsage, expectedVal string) {
	flag := cmd.Flag(flagName)

	require.NotNil(t, flag)
	require.Equal(t, flagName, flag.Name)
	require.Equal(t, flagShorthand, flag.Shorthand)
	require.Equal(t, flagUsage, flag.Usage)
	require.Equal(t, expectedVal, flag.Value.String())

	flagAnnotations := flag.Annotations
	require.Nil(t, flagAnnotations)
}

func runStart(t *testing.T, server server, args ...string) error {
	t.Helper()

	startCmd, err := Cmd(server)
	require.NoError(t, err)

	startCmd.SetArgs(args)

	return startCmd.Execute()
}

func TestStartCmdWithMissingArgs(t *testing.T) {
	t.Run("missing host", func(t *testing.T) {
		err := runStart(t, &mockServer{}, "--"+databaseTypeFlagName, databaseTypeMemOption)
		require.EqualError(t, err, "Neither api-host (command line flag) nor ARIES_MEDIATOR_API_HOST"+
			" (environment variable) have been set.")
	})

	t.Run("blank host", func(t *testing.T) {
		err := runStart(t, &mockServer{}, "--"+apiHostFlagName, "", "--"+databaseTypeFlagName, databaseTypeMemOption)
		require.ErrorIs(t, err, errMissingHost)
	})

	t.Run("missing database type", func(t *testing.T) {
		err := runStart(t, &mockServer{}, "--"+apiHostFlagName, "localhost:8080")
		require.Error(t, err)
		require.Contains(t, err.Error(), "Neither database-type (command line flag) nor ARIES_MEDIATOR_DATABASE_TYPE")
	})

	t.Run("unsupported database type", func(t *testing.T) {
		err := runStart(t, &mockServer{}, "--"+apiHostFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, "mysql")
		require.Error(t, err)
		require.Contains(t, err.Error(), "key database type not set to a valid type")
	})
}

func TestStartCmdWithInvalidArgs(t *testing.T) {
	base := []string{"--" + apiHostFlagName, "localhost:8080", "--" + databaseTypeFlagName, databaseTypeMemOption}

	tests := []struct {
		name string
		args []string
		err  string
	}{
		{
			name: "inbound host without scheme",
			args: []string{"--" + inboundHostFlagName, "localhost:0"},
			err:  "invalid inbound host option: Use scheme@url to pass the option",
		},
		{
			name: "external inbound host without scheme",
			args: []string{"--" + inboundHostExternalFlagName, "localhost:0"},
			err:  "inbound external host",
		},
		{
			name: "unsupported inbound scheme",
			args: []string{"--" + inboundHostFlagName, "udp@localhost:0"},
			err:  "inbound transport [udp] not supported",
		},
		{
			name: "bad db timeout",
			args: []string{"--" + databaseTimeoutFlagName, "soon"},
			err:  "failed to parse db timeout soon",
		},
		{
			name: "unsupported mailbox",
			args: []string{"--" + mailboxTypeFlagName, "redis"},
			err:  "mailbox type [redis] not supported",
		},
		{
			name: "bolt mailbox without path",
			args: []string{"--" + mailboxTypeFlagName, mailboxTypeBoltOption},
			err:  "bolt mailbox requires a mailbox path",
		},
		{
			name: "bad batch size",
			args: []string{"--" + maxBatchSizeFlagName, "ten"},
			err:  "failed to parse max-batch-size ten",
		},
		{
			name: "zero batch size",
			args: []string{"--" + maxBatchSizeFlagName, "-1"},
			err:  "invalid max batch size",
		},
		{
			name: "bad retention",
			args: []string{"--" + messageRetentionFlagName, "3 days"},
			err:  "failed to parse message-retention 3 days",
		},
		{
			name: "bad legacy prefix",
			args: []string{"--" + legacyPrefixFlagName, "maybe"},
			err:  "invalid syntax",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := runStart(t, &mockServer{}, append(append([]string{}, base...), tc.args...)...)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestStartCmdWithLogLevel(t *testing.T) {
	t.Run("start with log level - success", func(t *testing.T) {
		err := runStart(t, &mockServer{},
			"--"+apiHostFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+logLevelFlagName, "DEBUG",
		)
		require.NoError(t, err)
	})

	t.Run("start with log level - invalid", func(t *testing.T) {
		err := runStart(t, &mockServer{}, "--"+logLevelFlagName, "INVALID")
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("validate log level", func(t *testing.T) {
		err := setLogLevel("DEBUG")
		require.NoError(t, err)
		require.Equal(t, spi.DEBUG, log.GetLevel(""))

		err = setLogLevel("WARNING")
		require.NoError(t, err)
		require.Equal(t, spi.WARNING, log.GetLevel(""))

		err = setLogLevel("INFO")
		require.NoError(t, err)
		require.Equal(t, spi.INFO, log.GetLevel(""))

		err = setLogLevel("")
		require.NoError(t, err)
		require.Equal(t, spi.INFO, log.GetLevel(""))
	})
}

func TestStartCmdValidArgs(t *testing.T) {
	var served http.Handler

	server := &mockServer{serve: func(handler http.Handler) {
		served = handler

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, mediator.FeaturesPath+"?query=*", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		resp := struct {
			Protocols []string `json:"protocols"`
		}{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Protocols)

		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/connections/unknown", nil))
		require.Equal(t, http.StatusNotFound, rr.Code)
	}}

	err := runStart(t, server,
		"--"+apiHostFlagName, "localhost:8080",
		"--"+inboundHostFlagName, httpProtocol+"@localhost:0",
		"--"+inboundHostExternalFlagName, httpProtocol+"@https://mediator.example.com",
		"--"+databaseTypeFlagName, databaseTypeMemOption,
		"--"+routingKeysFlagName, "did:key:z6MkrouteA",
		"--"+maxBatchSizeFlagName, "5",
		"--"+messageRetentionFlagName, "72h",
		"--"+legacyPrefixFlagName, "false",
		"--"+webhookFlagName, "http://localhost:1/hook",
	)
	require.NoError(t, err)
	require.NotNil(t, served)
}

func TestStartCmdServerError(t *testing.T) {
	err := runStart(t, &mockServer{err: errors.New("port in use")},
		"--"+apiHostFlagName, "localhost:8080",
		"--"+databaseTypeFlagName, databaseTypeMemOption,
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to start aries mediator on port [localhost:8080]")
	require.Contains(t, err.Error(), "port in use")
}

func TestStartCmdValidArgsEnvVar(t *testing.T) {
	t.Setenv(apiHostEnvKey, "localhost:8080")
	t.Setenv(databaseTypeEnvKey, databaseTypeMemOption)
	t.Setenv(routingKeysEnvKey, "did:key:z6MkrouteA,did:key:z6MkrouteB")
	t.Setenv(legacyPrefixEnvKey, "true")

	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{})
	require.NoError(t, startCmd.Execute())

	params, err := newMediatorParameters(startCmd, &mockServer{})
	require.NoError(t, err)
	require.Equal(t, "localhost:8080", params.host)
	require.Equal(t, databaseTypeMemOption, params.dbParam.dbType)
	require.Equal(t, []string{"did:key:z6MkrouteA", "did:key:z6MkrouteB"}, params.routingKeys)
	require.True(t, params.legacyPrefix)
	require.Equal(t, mailboxTypeStoreOption, params.mailboxParam.mailboxType)
}

func TestStartCmdWithConfigFile(t *testing.T) {
	writeConfig := func(t *testing.T, content string) string {
		t.Helper()

		path := filepath.Join(t.TempDir(), "mediator.toml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		return path
	}

	t.Run("values from file", func(t *testing.T) {
		path := writeConfig(t, `
api-host = "localhost:9090"
database-type = "mem"
routing-key = ["did:key:z6MkrouteA"]
max-batch-size = 7
message-retention = "1h"
legacy-prefix-mismatch = false
`)

		startCmd, err := Cmd(&mockServer{})
		require.NoError(t, err)
		require.NoError(t, startCmd.Flags().Set(configFileFlagName, path))

		params, err := newMediatorParameters(startCmd, &mockServer{})
		require.NoError(t, err)
		require.Equal(t, "localhost:9090", params.host)
		require.Equal(t, []string{"did:key:z6MkrouteA"}, params.routingKeys)
		require.Equal(t, 7, params.maxBatchSize)
		require.Equal(t, time.Hour, params.retention)
		require.False(t, params.legacyPrefix)
	})

	t.Run("flags and env win over file", func(t *testing.T) {
		path := writeConfig(t, `
api-host = "localhost:9090"
database-type = "leveldb"
`)
		t.Setenv(databaseTypeEnvKey, databaseTypeMemOption)

		startCmd, err := Cmd(&mockServer{})
		require.NoError(t, err)
		require.NoError(t, startCmd.Flags().Set(configFileFlagName, path))
		require.NoError(t, startCmd.Flags().Set(apiHostFlagName, "localhost:7070"))

		params, err := newMediatorParameters(startCmd, &mockServer{})
		require.NoError(t, err)
		require.Equal(t, "localhost:7070", params.host)
		require.Equal(t, databaseTypeMemOption, params.dbParam.dbType)
	})

	t.Run("start from file", func(t *testing.T) {
		path := writeConfig(t, `
api-host = "localhost:9090"
database-type = "mem"
`)

		err := runStart(t, &mockServer{}, "--"+configFileFlagName, path)
		require.NoError(t, err)
	})

	t.Run("unknown key", func(t *testing.T) {
		path := writeConfig(t, `agent-label = "x"`)

		err := runStart(t, &mockServer{}, "--"+configFileFlagName, path)
		require.Error(t, err)
		require.Contains(t, err.Error(), `unknown key "agent-label"`)
	})

	t.Run("scalar expected", func(t *testing.T) {
		path := writeConfig(t, `api-host = ["a", "b"]`)

		err := runStart(t, &mockServer{}, "--"+configFileFlagName, path)
		require.Error(t, err)
		require.Contains(t, err.Error(), "api-host must be a scalar value")
	})

	t.Run("list expected", func(t *testing.T) {
		path := writeConfig(t, `
api-host = "localhost:9090"
database-type = "mem"
routing-key = [1, 2]
`)

		err := runStart(t, &mockServer{}, "--"+configFileFlagName, path)
		require.Error(t, err)
		require.Contains(t, err.Error(), "routing-key must be a list of strings")
	})

	t.Run("missing file", func(t *testing.T) {
		err := runStart(t, &mockServer{}, "--"+configFileFlagName, filepath.Join(t.TempDir(), "none.toml"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "read config file")
	})

	t.Run("malformed file", func(t *testing.T) {
		path := writeConfig(t, `api-host = `)

		err := runStart(t, &mockServer{}, "--"+configFileFlagName, path)
		require.Error(t, err)
		require.Contains(t, err.Error(), "read config file")
	})
}

func TestStartMediatorWithAuthorization(t *testing.T) {
	const token = "abc"

	server := &mockServer{serve: func(handler http.Handler) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, mediator.FeaturesPath, nil))
		require.Equal(t, http.StatusUnauthorized, rr.Code)

		req := httptest.NewRequest(http.MethodGet, mediator.FeaturesPath, nil)
		req.Header.Set("Authorization", "Bearer wrong")

		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusUnauthorized, rr.Code)

		req = httptest.NewRequest(http.MethodGet, mediator.FeaturesPath, nil)
		req.Header.Set("Authorization", "Bearer "+token)

		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}}

	err := runStart(t, server,
		"--"+apiHostFlagName, "localhost:8080",
		"--"+apiTokenFlagName, token,
		"--"+databaseTypeFlagName, databaseTypeMemOption,
	)
	require.NoError(t, err)
}

func TestStoreProviders(t *testing.T) {
	t.Run("leveldb", func(t *testing.T) {
		err := runStart(t, &mockServer{},
			"--"+apiHostFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeLevelDBOption,
			"--"+databasePathFlagName, filepath.Join(t.TempDir(), "db"),
		)
		require.NoError(t, err)
	})

	t.Run("leveldb without path", func(t *testing.T) {
		err := runStart(t, &mockServer{},
			"--"+apiHostFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeLevelDBOption,
			"--"+databaseTimeoutFlagName, "1",
		)
		require.Error(t, err)
		require.Contains(t, err.Error(), "leveldb requires a database path")
	})

	t.Run("bolt mailbox", func(t *testing.T) {
		err := runStart(t, &mockServer{},
			"--"+apiHostFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+mailboxTypeFlagName, mailboxTypeBoltOption,
			"--"+mailboxPathFlagName, filepath.Join(t.TempDir(), "mailbox.db"),
		)
		require.NoError(t, err)
	})
}

func TestSweepInterval(t *testing.T) {
	require.Equal(t, time.Minute, sweepInterval(10*time.Minute))
	require.Equal(t, maxSweepInterval, sweepInterval(72*time.Hour))
	require.Equal(t, 5*time.Nanosecond, sweepInterval(5*time.Nanosecond))
}
