/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/component/storage/leveldb"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/hyperledger/aries-mediator-go/pkg/controller"
	"github.com/hyperledger/aries-mediator-go/pkg/framework/aries"
	"github.com/hyperledger/aries-mediator-go/pkg/framework/aries/defaults"
)

const (
	envPrefix = "ARIES_MEDIATOR_"

	// config file flag.
	configFileFlagName  = "config-file"
	configFileEnvKey    = envPrefix + "CONFIG_FILE"
	configFileFlagUsage = "Path of a TOML file whose keys are the flag names of this command." +
		" Flags and environment variables take precedence over the file." +
		" Alternatively, this can be set with the following environment variable: " + configFileEnvKey

	// api host flag.
	apiHostFlagName      = "api-host"
	apiHostEnvKey        = envPrefix + "API_HOST"
	apiHostFlagShorthand = "a"
	apiHostFlagUsage     = "Admin API Host Name:Port." +
		" Alternatively, this can be set with the following environment variable: " + apiHostEnvKey

	// api token flag.
	apiTokenFlagName      = "api-token"
	apiTokenEnvKey        = envPrefix + "API_TOKEN" // nolint:gosec
	apiTokenFlagShorthand = "t"
	apiTokenFlagUsage     = "Check for bearer token in the authorization header (optional)." +
		" Alternatively, this can be set with the following environment variable: " + apiTokenEnvKey

	// inbound host url flag.
	inboundHostFlagName      = "inbound-host"
	inboundHostEnvKey        = envPrefix + "INBOUND_HOST"
	inboundHostFlagShorthand = "i"
	inboundHostFlagUsage     = "Inbound Host Name:Port. This is used internally to start the inbound server." +
		" Values should be in `scheme@url` format, scheme being http or ws." +
		" This flag can be repeated, allowing to configure multiple inbound transports." +
		" Alternatively, this can be set with the following environment variable: " + inboundHostEnvKey

	// inbound host external url flag.
	inboundHostExternalFlagName      = "inbound-host-external"
	inboundHostExternalEnvKey        = envPrefix + "INBOUND_HOST_EXTERNAL"
	inboundHostExternalFlagShorthand = "e"
	inboundHostExternalFlagUsage     = "Inbound Host External Name:Port and values should be in `scheme@url` format" +
		" This is the URL for the inbound server as seen externally." +
		" If not provided, then the internal inbound host will be used here." +
		" This flag can be repeated, allowing to configure multiple inbound transports." +
		" Alternatively, this can be set with the following environment variable: " + inboundHostExternalEnvKey

	// service endpoint flag.
	serviceEndpointFlagName  = "service-endpoint"
	serviceEndpointEnvKey    = envPrefix + "SERVICE_ENDPOINT"
	serviceEndpointFlagUsage = "Endpoint advertised in mediation grants." +
		" Defaults to the endpoint of the first inbound transport." +
		" Alternatively, this can be set with the following environment variable: " + serviceEndpointEnvKey

	// routing keys flag.
	routingKeysFlagName      = "routing-key"
	routingKeysEnvKey        = envPrefix + "ROUTING_KEYS"
	routingKeysFlagShorthand = "r"
	routingKeysFlagUsage     = "Routing key advertised in mediation grants." +
		" This flag can be repeated." +
		" Alternatively, this can be set with the following environment variable (in CSV format): " +
		routingKeysEnvKey

	databaseTypeFlagName      = "database-type"
	databaseTypeEnvKey        = envPrefix + "DATABASE_TYPE"
	databaseTypeFlagShorthand = "q"
	databaseTypeFlagUsage     = "The type of database to use for connections, routes and queued messages. " +
		"Supported options: mem, leveldb. " +
		" Alternatively, this can be set with the following environment variable: " + databaseTypeEnvKey

	databasePathFlagName      = "database-path"
	databasePathEnvKey        = envPrefix + "DATABASE_PATH"
	databasePathFlagShorthand = "p"
	databasePathFlagUsage     = "Directory of the leveldb database. Not needed if using memstore." +
		" Alternatively, this can be set with the following environment variable: " + databasePathEnvKey

	databaseTimeoutFlagName  = "database-timeout"
	databaseTimeoutFlagUsage = "Total time in seconds to wait until the db is available before giving up." +
		" Default: " + databaseTimeoutDefault + " seconds." +
		" Alternatively, this can be set with the following environment variable: " + databaseTimeoutEnvKey
	databaseTimeoutEnvKey  = envPrefix + "DATABASE_TIMEOUT"
	databaseTimeoutDefault = "30"

	mailboxTypeFlagName  = "mailbox-type"
	mailboxTypeEnvKey    = envPrefix + "MAILBOX_TYPE"
	mailboxTypeFlagUsage = "Backend of the message queue. Supported options: store, bolt." +
		" store keeps messages in the database, bolt in a separate bbolt file. Defaults to store." +
		" Alternatively, this can be set with the following environment variable: " + mailboxTypeEnvKey

	mailboxPathFlagName  = "mailbox-path"
	mailboxPathEnvKey    = envPrefix + "MAILBOX_PATH"
	mailboxPathFlagUsage = "File of the bbolt message queue." +
		" Alternatively, this can be set with the following environment variable: " + mailboxPathEnvKey

	maxBatchSizeFlagName  = "max-batch-size"
	maxBatchSizeEnvKey    = envPrefix + "MAX_BATCH_SIZE"
	maxBatchSizeFlagUsage = "Upper bound of messages handed out per pickup request." +
		" Alternatively, this can be set with the following environment variable: " + maxBatchSizeEnvKey

	messageRetentionFlagName  = "message-retention"
	messageRetentionEnvKey    = envPrefix + "MESSAGE_RETENTION"
	messageRetentionFlagUsage = "How long queued messages are kept, e.g. 72h. Messages are kept forever if not set." +
		" Alternatively, this can be set with the following environment variable: " + messageRetentionEnvKey

	// webhook url flag.
	webhookFlagName      = "webhook-url"
	webhookEnvKey        = envPrefix + "WEBHOOK_URL"
	webhookFlagShorthand = "w"
	webhookFlagUsage     = "URL to send protocol state notifications to." +
		" This flag can be repeated, allowing for multiple listeners." +
		" Alternatively, this can be set with the following environment variable (in CSV format): " + webhookEnvKey

	// legacy prefix flag.
	legacyPrefixFlagName  = "legacy-prefix-mismatch"
	legacyPrefixEnvKey    = envPrefix + "LEGACY_PREFIX_MISMATCH"
	legacyPrefixFlagUsage = "Accept did:sov message type prefixes for https://didcomm.org protocols." +
		" Possible values [true] [false]. Defaults to true if not set." +
		" Alternatively, this can be set with the following environment variable: " + legacyPrefixEnvKey

	// log level.
	logLevelFlagName  = "log-level"
	logLevelEnvKey    = envPrefix + "LOG_LEVEL"
	logLevelFlagUsage = "Log level." +
		" Possible values [INFO] [DEBUG] [ERROR] [WARNING] [CRITICAL] . Defaults to INFO if not set." +
		" Alternatively, this can be set with the following environment variable: " + logLevelEnvKey

	tlsCertFileFlagName      = "tls-cert-file"
	tlsCertFileEnvKey        = envPrefix + "TLS_CERT_FILE"
	tlsCertFileFlagShorthand = "c"
	tlsCertFileFlagUsage     = "tls certificate file of the admin API." +
		" Alternatively, this can be set with the following environment variable: " + tlsCertFileEnvKey

	tlsKeyFileFlagName      = "tls-key-file"
	tlsKeyFileEnvKey        = envPrefix + "TLS_KEY_FILE"
	tlsKeyFileFlagShorthand = "k"
	tlsKeyFileFlagUsage     = "tls key file of the admin API." +
		" Alternatively, this can be set with the following environment variable: " + tlsKeyFileEnvKey

	httpProtocol      = "http"
	websocketProtocol = "ws"

	databaseTypeMemOption     = "mem"
	databaseTypeLevelDBOption = "leveldb"

	mailboxTypeStoreOption = "store"
	mailboxTypeBoltOption  = "bolt"

	maxSweepInterval = time.Hour
)

var (
	errMissingHost = errors.New("host not provided")
	logger         = log.New("aries-framework/mediator")
)

type mediatorParameters struct {
	server                                     server
	host, token                                string
	tlsCertFile, tlsKeyFile                    string
	serviceEndpoint                            string
	inboundHostInternals, inboundHostExternals []string
	routingKeys, webhookURLs                   []string
	maxBatchSize                               int
	retention                                  time.Duration
	legacyPrefix                               bool
	dbParam                                    *dbParam
	mailboxParam                               *mailboxParam
}

type dbParam struct {
	dbType  string
	path    string
	timeout uint64
}

type mailboxParam struct {
	mailboxType string
	path        string
}

// nolint:gochecknoglobals
var supportedStorageProviders = map[string]func(path string) (storage.Provider, error){
	databaseTypeMemOption: func(_ string) (storage.Provider, error) { // nolint:unparam
		return mem.NewProvider(), nil
	},
	databaseTypeLevelDBOption: func(path string) (storage.Provider, error) {
		if path == "" {
			return nil, errors.New("leveldb requires a database path")
		}

		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}

		return leveldb.NewProvider(path), nil
	},
}

type server interface {
	ListenAndServe(host string, router http.Handler, certFile, keyFile string) error
}

// HTTPServer represents an actual server implementation.
type HTTPServer struct{}

// ListenAndServe starts the server using the standard Go HTTP server implementation.
func (s *HTTPServer) ListenAndServe(host string, router http.Handler, certFile, keyFile string) error {
	srv := &http.Server{Addr: host, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	if certFile != "" && keyFile != "" {
		return srv.ListenAndServeTLS(certFile, keyFile)
	}

	return srv.ListenAndServe()
}

// Cmd returns the Cobra start command.
func Cmd(server server) (*cobra.Command, error) {
	startCmd := createStartCMD(server)

	createFlags(startCmd)

	return startCmd, nil
}

func createStartCMD(server server) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a mediator",
		Long:  `Start an Aries DIDComm mediator and its admin API`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := newMediatorParameters(cmd, server)
			if err != nil {
				return err
			}

			return startMediator(parameters)
		},
	}
}

func newMediatorParameters(cmd *cobra.Command, server server) (*mediatorParameters, error) { //nolint: funlen,gocyclo
	cfg, err := loadConfigFile(cmd)
	if err != nil {
		return nil, err
	}

	// log level
	logLevel, err := cfg.getUserSetVar(cmd, logLevelFlagName, logLevelEnvKey, true)
	if err != nil {
		return nil, err
	}

	err = setLogLevel(logLevel)
	if err != nil {
		return nil, err
	}

	host, err := cfg.getUserSetVar(cmd, apiHostFlagName, apiHostEnvKey, false)
	if err != nil {
		return nil, err
	}

	token, err := cfg.getUserSetVar(cmd, apiTokenFlagName, apiTokenEnvKey, true)
	if err != nil {
		return nil, err
	}

	inboundHosts, err := cfg.getUserSetVars(cmd, inboundHostFlagName, inboundHostEnvKey, true)
	if err != nil {
		return nil, err
	}

	inboundHostExternals, err := cfg.getUserSetVars(cmd, inboundHostExternalFlagName,
		inboundHostExternalEnvKey, true)
	if err != nil {
		return nil, err
	}

	serviceEndpoint, err := cfg.getUserSetVar(cmd, serviceEndpointFlagName, serviceEndpointEnvKey, true)
	if err != nil {
		return nil, err
	}

	routingKeys, err := cfg.getUserSetVars(cmd, routingKeysFlagName, routingKeysEnvKey, true)
	if err != nil {
		return nil, err
	}

	webhookURLs, err := cfg.getUserSetVars(cmd, webhookFlagName, webhookEnvKey, true)
	if err != nil {
		return nil, err
	}

	dbParam, err := getDBParam(cmd, cfg)
	if err != nil {
		return nil, err
	}

	mailboxParam, err := getMailboxParam(cmd, cfg)
	if err != nil {
		return nil, err
	}

	maxBatchSize, err := getIntValue(cmd, cfg, maxBatchSizeFlagName, maxBatchSizeEnvKey)
	if err != nil {
		return nil, err
	}

	retention, err := getDurationValue(cmd, cfg, messageRetentionFlagName, messageRetentionEnvKey)
	if err != nil {
		return nil, err
	}

	legacyPrefix, err := getBoolValue(cmd, cfg, legacyPrefixFlagName, legacyPrefixEnvKey, true)
	if err != nil {
		return nil, err
	}

	tlsCertFile, err := cfg.getUserSetVar(cmd, tlsCertFileFlagName, tlsCertFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	tlsKeyFile, err := cfg.getUserSetVar(cmd, tlsKeyFileFlagName, tlsKeyFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	return &mediatorParameters{
		server:               server,
		host:                 host,
		token:                token,
		inboundHostInternals: inboundHosts,
		inboundHostExternals: inboundHostExternals,
		serviceEndpoint:      serviceEndpoint,
		routingKeys:          routingKeys,
		webhookURLs:          webhookURLs,
		dbParam:              dbParam,
		mailboxParam:         mailboxParam,
		maxBatchSize:         maxBatchSize,
		retention:            retention,
		legacyPrefix:         legacyPrefix,
		tlsCertFile:          tlsCertFile,
		tlsKeyFile:           tlsKeyFile,
	}, nil
}

func getDBParam(cmd *cobra.Command, cfg fileConfig) (*dbParam, error) {
	dbParam := &dbParam{}

	var err error

	dbParam.dbType, err = cfg.getUserSetVar(cmd, databaseTypeFlagName, databaseTypeEnvKey, false)
	if err != nil {
		return nil, err
	}

	dbParam.path, err = cfg.getUserSetVar(cmd, databasePathFlagName, databasePathEnvKey, true)
	if err != nil {
		return nil, err
	}

	dbTimeout, err := cfg.getUserSetVar(cmd, databaseTimeoutFlagName, databaseTimeoutEnvKey, true)
	if err != nil {
		return nil, err
	}

	if dbTimeout == "" || dbTimeout == "0" {
		dbTimeout = databaseTimeoutDefault
	}

	t, err := strconv.Atoi(dbTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse db timeout %s: %w", dbTimeout, err)
	}

	dbParam.timeout = uint64(t)

	return dbParam, nil
}

func getMailboxParam(cmd *cobra.Command, cfg fileConfig) (*mailboxParam, error) {
	mailboxType, err := cfg.getUserSetVar(cmd, mailboxTypeFlagName, mailboxTypeEnvKey, true)
	if err != nil {
		return nil, err
	}

	if mailboxType == "" {
		mailboxType = mailboxTypeStoreOption
	}

	path, err := cfg.getUserSetVar(cmd, mailboxPathFlagName, mailboxPathEnvKey, true)
	if err != nil {
		return nil, err
	}

	switch mailboxType {
	case mailboxTypeStoreOption:
	case mailboxTypeBoltOption:
		if path == "" {
			return nil, errors.New("bolt mailbox requires a mailbox path")
		}
	default:
		return nil, fmt.Errorf("mailbox type [%s] not supported", mailboxType)
	}

	return &mailboxParam{mailboxType: mailboxType, path: path}, nil
}

func getIntValue(cmd *cobra.Command, cfg fileConfig, flagName, envKey string) (int, error) {
	v, err := cfg.getUserSetVar(cmd, flagName, envKey, true)
	if err != nil {
		return 0, err
	}

	if v == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s %s: %w", flagName, v, err)
	}

	return n, nil
}

func getDurationValue(cmd *cobra.Command, cfg fileConfig, flagName, envKey string) (time.Duration, error) {
	v, err := cfg.getUserSetVar(cmd, flagName, envKey, true)
	if err != nil {
		return 0, err
	}

	if v == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s %s: %w", flagName, v, err)
	}

	return d, nil
}

func getBoolValue(cmd *cobra.Command, cfg fileConfig, flagName, envKey string, def bool) (bool, error) {
	v, err := cfg.getUserSetVar(cmd, flagName, envKey, true)
	if err != nil {
		return false, err
	}

	if v == "" {
		return def, nil
	}

	return strconv.ParseBool(v)
}

func createFlags(startCmd *cobra.Command) {
	// config file flag
	startCmd.Flags().StringP(configFileFlagName, "", "", configFileFlagUsage)

	// api host flag
	startCmd.Flags().StringP(apiHostFlagName, apiHostFlagShorthand, "", apiHostFlagUsage)

	// api token flag
	startCmd.Flags().StringP(apiTokenFlagName, apiTokenFlagShorthand, "", apiTokenFlagUsage)

	// inbound host flag
	startCmd.Flags().StringSliceP(inboundHostFlagName, inboundHostFlagShorthand, []string{},
		inboundHostFlagUsage)

	// inbound external host flag
	startCmd.Flags().StringSliceP(inboundHostExternalFlagName, inboundHostExternalFlagShorthand,
		[]string{}, inboundHostExternalFlagUsage)

	// service endpoint
	startCmd.Flags().StringP(serviceEndpointFlagName, "", "", serviceEndpointFlagUsage)

	// routing keys
	startCmd.Flags().StringSliceP(routingKeysFlagName, routingKeysFlagShorthand, []string{}, routingKeysFlagUsage)

	// db type
	startCmd.Flags().StringP(databaseTypeFlagName, databaseTypeFlagShorthand, "", databaseTypeFlagUsage)

	// db path
	startCmd.Flags().StringP(databasePathFlagName, databasePathFlagShorthand, "", databasePathFlagUsage)

	// db timeout
	startCmd.Flags().StringP(databaseTimeoutFlagName, "", "", databaseTimeoutFlagUsage)

	// mailbox
	startCmd.Flags().StringP(mailboxTypeFlagName, "", "", mailboxTypeFlagUsage)
	startCmd.Flags().StringP(mailboxPathFlagName, "", "", mailboxPathFlagUsage)

	// pickup
	startCmd.Flags().StringP(maxBatchSizeFlagName, "", "", maxBatchSizeFlagUsage)
	startCmd.Flags().StringP(messageRetentionFlagName, "", "", messageRetentionFlagUsage)

	// webhook url flag
	startCmd.Flags().StringSliceP(webhookFlagName, webhookFlagShorthand, []string{}, webhookFlagUsage)

	// legacy prefix
	startCmd.Flags().StringP(legacyPrefixFlagName, "", "", legacyPrefixFlagUsage)

	// log level
	startCmd.Flags().StringP(logLevelFlagName, "", "", logLevelFlagUsage)

	// tls cert file
	startCmd.Flags().StringP(tlsCertFileFlagName, tlsCertFileFlagShorthand, "", tlsCertFileFlagUsage)

	// tls key file
	startCmd.Flags().StringP(tlsKeyFileFlagName, tlsKeyFileFlagShorthand, "", tlsKeyFileFlagUsage)
}

func getInboundTransportOpts(inboundHostInternals, inboundHostExternals []string) ([]aries.Option, error) {
	internalHost, err := getInboundSchemeToURLMap(inboundHostInternals)
	if err != nil {
		return nil, fmt.Errorf("inbound internal host : %w", err)
	}

	externalHost, err := getInboundSchemeToURLMap(inboundHostExternals)
	if err != nil {
		return nil, fmt.Errorf("inbound external host : %w", err)
	}

	var opts []aries.Option

	// ws first: its endpoint is the default service endpoint
	for _, scheme := range []string{websocketProtocol, httpProtocol} {
		host, ok := internalHost[scheme]
		if !ok {
			continue
		}

		switch scheme {
		case httpProtocol:
			opts = append(opts, defaults.WithInboundHTTPAddr(host, externalHost[scheme]))
		case websocketProtocol:
			opts = append(opts, defaults.WithInboundWSAddr(host, externalHost[scheme]))
		}
	}

	for scheme := range internalHost {
		if scheme != httpProtocol && scheme != websocketProtocol {
			return nil, fmt.Errorf("inbound transport [%s] not supported", scheme)
		}
	}

	return opts, nil
}

func getInboundSchemeToURLMap(schemeHostStr []string) (map[string]string, error) {
	const validSliceLen = 2

	schemeHostMap := make(map[string]string)

	for _, schemeHost := range schemeHostStr {
		schemeHostSlice := strings.Split(schemeHost, "@")
		if len(schemeHostSlice) != validSliceLen {
			return nil, fmt.Errorf("invalid inbound host option: Use scheme@url to pass the option")
		}

		schemeHostMap[schemeHostSlice[0]] = schemeHostSlice[1]
	}

	return schemeHostMap, nil
}

func setLogLevel(logLevel string) error {
	if logLevel != "" {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("failed to parse log level '%s' : %w", logLevel, err)
		}

		log.SetLevel("", level)

		logger.Infof("logger level set to %s", logLevel)
	}

	return nil
}

func validateAuthorizationBearerToken(w http.ResponseWriter, r *http.Request, token string) bool {
	actHdr := r.Header.Get("Authorization")
	expHdr := "Bearer " + token

	if subtle.ConstantTimeCompare([]byte(actHdr), []byte(expHdr)) != 1 {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Unauthorised.\n")) // nolint:gosec,errcheck

		return false
	}

	return true
}

func authorizationMiddleware(token string) mux.MiddlewareFunc {
	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validateAuthorizationBearerToken(w, r, token) {
				next.ServeHTTP(w, r)
			}
		})
	}

	return middleware
}

func startMediator(parameters *mediatorParameters) error {
	if parameters.host == "" {
		return errMissingHost
	}

	framework, err := createMediator(parameters)
	if err != nil {
		return err
	}

	defer func() {
		if e := framework.Close(); e != nil {
			logger.Warnf("failed to close the mediator: %s", e)
		}
	}()

	handler, err := createAPIHandler(framework, parameters)
	if err != nil {
		return err
	}

	logger.Infof("Starting aries mediator admin API on host [%s]", parameters.host)

	err = parameters.server.ListenAndServe(parameters.host, handler, parameters.tlsCertFile, parameters.tlsKeyFile)
	if err != nil {
		return fmt.Errorf("failed to start aries mediator on port [%s], cause:  %w", parameters.host, err)
	}

	return nil
}

func createAPIHandler(framework *aries.Aries, parameters *mediatorParameters) (http.Handler, error) {
	ctx, err := framework.Context()
	if err != nil {
		return nil, fmt.Errorf("failed to get aries context : %w", err)
	}

	// get all HTTP REST API handlers available for controller API
	handlers, err := controller.GetRESTHandlers(ctx, controller.WithWebhookURLs(parameters.webhookURLs...))
	if err != nil {
		return nil, fmt.Errorf("failed to start aries mediator on port [%s], failed to get rest service api :  %w",
			parameters.host, err)
	}

	router := mux.NewRouter()

	if parameters.token != "" {
		router.Use(authorizationMiddleware(parameters.token))
	}

	for _, handler := range handlers {
		router.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
	}

	return cors.New(
		cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodHead},
			AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"},
		},
	).Handler(router), nil
}

func createMediator(parameters *mediatorParameters) (*aries.Aries, error) {
	inboundTransportOpt, err := getInboundTransportOpts(parameters.inboundHostInternals,
		parameters.inboundHostExternals)
	if err != nil {
		return nil, fmt.Errorf("failed to start aries mediator on port [%s], failed to inbound transport opt : %w",
			parameters.host, err)
	}

	storePro, err := createStoreProviders(parameters)
	if err != nil {
		return nil, err
	}

	// the store goes first so a failing option closes it
	opts := []aries.Option{
		aries.WithStoreProvider(storePro),
		aries.WithLegacyPrefixMismatch(parameters.legacyPrefix),
	}

	if parameters.mailboxParam.mailboxType == mailboxTypeBoltOption {
		opts = append(opts, defaults.WithBoltMailbox(parameters.mailboxParam.path))
	}

	opts = append(opts, inboundTransportOpt...)

	if parameters.serviceEndpoint != "" {
		opts = append(opts, aries.WithServiceEndpoint(parameters.serviceEndpoint))
	}

	if len(parameters.routingKeys) > 0 {
		opts = append(opts, aries.WithRoutingKeys(parameters.routingKeys...))
	}

	if parameters.maxBatchSize != 0 {
		opts = append(opts, aries.WithMaxBatchSize(parameters.maxBatchSize))
	}

	if parameters.retention > 0 {
		opts = append(opts, aries.WithMessageRetention(parameters.retention, sweepInterval(parameters.retention)))
	}

	framework, err := aries.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start aries mediator on port [%s], failed to initialize framework :  %w",
			parameters.host, err)
	}

	return framework, nil
}

// sweepInterval sweeps ten times per retention period, at least hourly.
func sweepInterval(retention time.Duration) time.Duration {
	const sweepsPerRetention = 10

	interval := retention / sweepsPerRetention
	if interval <= 0 {
		interval = retention
	}

	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}

	return interval
}

func createStoreProviders(parameters *mediatorParameters) (storage.Provider, error) {
	provider, supported := supportedStorageProviders[parameters.dbParam.dbType]
	if !supported {
		return nil, fmt.Errorf("key database type not set to a valid type." +
			" run start --help to see the available options")
	}

	var store storage.Provider

	err := backoff.RetryNotify(
		func() error {
			var openErr error
			store, openErr = provider(parameters.dbParam.path)
			return openErr
		},
		backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), parameters.dbParam.timeout),
		func(retryErr error, t time.Duration) {
			logger.Warnf(
				"failed to connect to storage, will sleep for %s before trying again : %s\n",
				t, retryErr)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to storage at %s : %w", parameters.dbParam.path, err)
	}

	return store, nil
}
