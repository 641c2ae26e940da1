/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"github.com/serialxfer/xfer/xmodem"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(receiveCmd)
	addTransferFlags(receiveCmd)
	receiveCmd.Flags().BoolVar(&transferOverrides.WriteDuplicates, "write-duplicates", false, "write the payload of retransmitted blocks again")
}

var receiveCmd = &cobra.Command{
	Use:   "receive FILE",
	Short: "Receive a file over XMODEM",
	Args:  cobra.ExactArgs(1),
	Run: func(c *cobra.Command, args []string) {
		if err := runTransfer(c, "receive", args[0], xmodem.ReceiveFile); err != nil {
			log.Fatal(err)
		}
	},
}
