package main

import (
	"fmt"
	"os"

	"github.com/khjia/beast2"
	"github.com/spf13/cobra"
)

var configPath string

func runChains(cmd *cobra.Command, args []string) error {
	rc, err := beast2.LoadRunConfig(configPath)
	if err != nil {
		return err
	}
	chains, err := rc.BuildChains()
	if err != nil {
		return err
	}
	fmt.Println("running", len(chains), "chain(s) for", rc.Generations, "generations")
	return beast2.RunParallel(chains)
}

func checkConfig(cmd *cobra.Command, args []string) error {
	rc, err := beast2.LoadRunConfig(configPath)
	if err != nil {
		return err
	}
	if _, err := rc.BuildChains(); err != nil {
		return err
	}
	fmt.Println("config ok:", len(rc.Taxa), "taxa,", len(rc.Calibrations), "calibrations")
	return nil
}

func main() {
	root := &cobra.Command{
		Use:   "yulet",
		Short: "MCMC sampling under the calibrated Yule tree prior",
		RunE:  runChains,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "yulet.yaml", "run configuration file")

	check := &cobra.Command{
		Use:   "check",
		Short: "validate a run configuration without sampling",
		RunE:  checkConfig,
	}
	root.AddCommand(check)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
