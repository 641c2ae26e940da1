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
	"fmt"

	"github.com/serialxfer/xfer/serialport"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(portsCmd)
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity(nil)
		ports, err := serialport.ListPorts()
		if err != nil {
			log.Fatal(err)
		}
		if len(ports) == 0 {
			fmt.Println(warnString, "no serial ports found")
			return
		}
		for _, p := range ports {
			fmt.Println(p)
		}
	},
}
