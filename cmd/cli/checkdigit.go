package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/pkg/constants"
)

func newCheckDigitCommand() *cobra.Command {
	var (
		algorithm string
		alphabet  string
		prefix    string
	)

	codec := func() (*service.CheckDigitCodec, error) {
		a := alphabet
		if a == "" {
			alg := constants.Algorithm(algorithm)
			if !alg.IsValid() {
				return nil, fmt.Errorf("unknown algorithm %q", algorithm)
			}
			a = constants.DefaultAlphabet(alg)
		}
		return service.NewCheckDigitCodec(a)
	}

	cmd := &cobra.Command{
		Use:   "checkdigit",
		Short: "Compute or verify Luhn mod N check digits",
	}
	cmd.PersistentFlags().StringVar(&algorithm, "algorithm", string(constants.AlgorithmRandomNum), "Algorithm whose alphabet the check digit is computed over")
	cmd.PersistentFlags().StringVar(&alphabet, "alphabet", "", "Explicit alphabet, overrides --algorithm")
	cmd.PersistentFlags().StringVar(&prefix, "prefix", "", "Domain prefix of the value")

	computeCmd := &cobra.Command{
		Use:   "compute <value>",
		Short: "Append the check digit to a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := codec()
			if err != nil {
				return err
			}
			withCheck, err := c.Append(strings.TrimPrefix(args[0], prefix))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prefix+withCheck)
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate <pseudonym>",
		Short: "Verify the trailing check digit of a pseudonym",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := codec()
			if err != nil {
				return err
			}
			ok, err := c.Validate(args[0], prefix)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "invalid")
				return fmt.Errorf("check digit of %s does not match", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}

	cmd.AddCommand(computeCmd, validateCmd)
	return cmd
}
