package cli

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/logger"
)

func newCapacityCommand() *cobra.Command {
	var (
		size         int64
		probability  float64
		alphabetSize int
		algorithm    string
		retries      int
		minLength    int
	)

	cmd := &cobra.Command{
		Use:   "capacity",
		Short: "Compute the minimum pseudonym length for a RANDOM domain",
		Long: `capacity prints the smallest length L for which a domain holding --size records
still finds a free random pseudonym within --retries attempts with the requested probability.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if size < 1 {
				return fmt.Errorf("--size must be positive")
			}
			if alphabetSize == 0 {
				if !constants.Algorithm(algorithm).IsValid() {
					return fmt.Errorf("unknown algorithm %q", algorithm)
				}
				alphabetSize = len([]rune(constants.DefaultAlphabet(constants.Algorithm(algorithm))))
			}
			if alphabetSize < 2 {
				return fmt.Errorf("alphabet size must be at least 2, use --alphabet-size or a RANDOM_* --algorithm")
			}
			if retries <= 0 {
				return fmt.Errorf("--retries must be positive")
			}

			planner := service.NewCapacityPlanner(retries, constants.DefaultSuccessProbability, minLength, logger.NewNoopLogger())
			length := planner.MinimumLength(cmd.Context(), size, probability, alphabetSize, retries)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "length:      %d\n", length)
			fmt.Fprintf(out, "capacity:    %.0f\n", math.Pow(float64(alphabetSize), float64(length)))
			fmt.Fprintf(out, "probability: %v\n", planner.NormalizeProbability(probability))
			return nil
		},
	}

	cmd.Flags().Int64Var(&size, "size", 0, "Expected number of records in the domain")
	cmd.Flags().Float64Var(&probability, "probability", constants.DefaultSuccessProbability, "Desired probability that an allocation succeeds")
	cmd.Flags().IntVar(&alphabetSize, "alphabet-size", 0, "Number of symbols pseudonyms are drawn from")
	cmd.Flags().StringVar(&algorithm, "algorithm", string(constants.AlgorithmRandomNum), "Algorithm whose alphabet sizes the domain when --alphabet-size is unset")
	cmd.Flags().IntVar(&retries, "retries", constants.DefaultRetryBudget, "Generation attempts per allocation")
	cmd.Flags().IntVar(&minLength, "min-length", constants.MinimumPseudonymLength, "Floor applied to the computed length")
	_ = cmd.MarkFlagRequired("size")
	return cmd
}
