// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// commandDoc is the machine-readable description of one command.
type commandDoc struct {
	Name        string    `json:"name"`
	Short       string    `json:"short"`
	Usage       string    `json:"usage"`
	Flags       []flagDoc `json:"flags,omitempty"`
	Subcommands []string  `json:"subcommands,omitempty"`
}

type flagDoc struct {
	Name    string `json:"name"`
	Usage   string `json:"usage"`
	Default string `json:"default"`
}

// newDocsCommand exports the command tree as JSON, for shell integrations
// and doc generation.
func newDocsCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "docs",
		Short:  "Print the command tree as JSON",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root := cmd.Root()
			docs := []commandDoc{describeCommand(root)}
			for _, sub := range root.Commands() {
				if sub.Hidden {
					continue
				}
				docs = append(docs, describeCommand(sub))
			}
			return printJSON(cmd, docs)
		},
	}
}

func describeCommand(cmd *cobra.Command) commandDoc {
	doc := commandDoc{
		Name:  cmd.Name(),
		Short: cmd.Short,
		Usage: cmd.UseLine(),
	}
	collect := func(flag *pflag.Flag) {
		if flag.Hidden {
			return
		}
		doc.Flags = append(doc.Flags, flagDoc{
			Name:    flag.Name,
			Usage:   flag.Usage,
			Default: flag.DefValue,
		})
	}
	cmd.LocalFlags().VisitAll(collect)
	for _, sub := range cmd.Commands() {
		if !sub.Hidden {
			doc.Subcommands = append(doc.Subcommands, sub.Name())
		}
	}
	return doc
}
