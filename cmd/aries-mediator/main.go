/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package main runs a DIDComm mediator: it accepts forwarded messages for the recipient keys it
// was granted, queues them per key and hands them out through message pickup. An admin REST API
// and webhook notifications expose the mediator state.
//
//	aries-mediator start --api-host localhost:8080 --inbound-host http@localhost:8081
//
// swagger:meta
package main

import (
	"os"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/spf13/cobra"

	"github.com/hyperledger/aries-mediator-go/cmd/aries-mediator/startcmd"
)

var logger = log.New("aries-framework/mediator")

func main() {
	rootCmd := &cobra.Command{
		Use:          "aries-mediator",
		Short:        "Aries DIDComm mediator",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	startCmd, err := startcmd.Cmd(&startcmd.HTTPServer{})
	if err != nil {
		logger.Fatalf("create start command: %s", err)
	}

	rootCmd.AddCommand(startCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Errorf("aries-mediator: %s", err)
		os.Exit(1)
	}
}
