package main

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pipelined.dev/chain/config"
	"pipelined.dev/chain/log"
)

type rootOptions struct {
	configPath string
	debug      bool
	out        io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}
	cmd := &cobra.Command{
		Use:           "simchain",
		Short:         "Simchain simulates communication chains",
		Long:          `Simchain runs a pipelined communication chain over a range of Eb/N0 values and reports bit and frame error rates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML file with simulation parameters")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	cmd.AddCommand(newRunCmd(opts))
	return cmd
}

func (o *rootOptions) logger() *logrus.Logger {
	level := logrus.InfoLevel
	if o.debug {
		level = logrus.DebugLevel
	}
	return log.New(o.out, level)
}

func (o *rootOptions) config() (config.Config, error) {
	if o.configPath == "" {
		c := config.Default()
		return c, c.Validate()
	}
	return config.Load(o.configPath)
}
