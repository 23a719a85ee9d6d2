package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/plenum/config"
	"github.com/pthm-cable/plenum/scenario"
)

var (
	tuneScenario string
	tuneTicks    int
	tuneEvals    int
	tuneOutput   string
)

// tuneCmd searches solver parameters with CMA-ES, scoring each candidate by
// how cleanly the scenario relaxes to equilibrium.
var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Search solver parameters that settle a scenario cleanly",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			logrus.Fatalf("loading config: %v", err)
		}
		sc, err := scenario.Load(tuneScenario)
		if err != nil {
			logrus.Fatalf("loading scenario: %v", err)
		}
		// Judge bare relaxation dynamics: no pumps, no ambient field.
		trial := *sc
		trial.Pumps = nil
		trial.Field = scenario.FieldSpec{}

		params := newParamVector()
		fit := newTuneFitness(&trial, params, cfg, tuneTicks)

		var logWriter *csv.Writer
		if tuneOutput != "" {
			if err := os.MkdirAll(tuneOutput, 0755); err != nil {
				logrus.Fatalf("creating output dir: %v", err)
			}
			logFile, err := os.Create(filepath.Join(tuneOutput, "tune_log.csv"))
			if err != nil {
				logrus.Fatalf("creating tune log: %v", err)
			}
			defer logFile.Close()
			logWriter = csv.NewWriter(logFile)
			defer logWriter.Flush()
			header := []string{"eval", "score"}
			for _, spec := range params.specs {
				header = append(header, spec.Name)
			}
			logWriter.Write(header)
		}

		evals := 0
		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				raw := params.clamp(params.denormalize(x))
				score := fit.Evaluate(raw)
				evals++
				best, _ := fit.Best()
				fmt.Printf("eval %d/%d: score=%.1f best=%.1f params=%v\n", evals, tuneEvals, score, best, raw)
				if logWriter != nil {
					row := []string{strconv.Itoa(evals), fmt.Sprintf("%.3f", score)}
					for _, v := range raw {
						row = append(row, fmt.Sprintf("%.6f", v))
					}
					logWriter.Write(row)
					logWriter.Flush()
				}
				return score
			},
		}
		settings := &optimize.Settings{FuncEvaluations: tuneEvals}
		method := &optimize.CmaEsChol{InitStepSize: 0.3}

		fmt.Printf("tuning %d parameters over %d evaluations, %d ticks per trial\n",
			len(params.specs), tuneEvals, tuneTicks)
		initX := params.normalize(params.defaultVector())
		result, err := optimize.Minimize(problem, initX, settings, method)
		if err != nil {
			logrus.Warnf("optimization ended early: %v", err)
		}

		best, bestRaw := fit.Best()
		if bestRaw == nil {
			if result != nil {
				bestRaw = params.clamp(params.denormalize(result.X))
			} else {
				bestRaw = params.defaultVector()
			}
		}
		fmt.Printf("\nbest score %.1f after %d evaluations\n", best, evals)
		for i, spec := range params.specs {
			fmt.Printf("  %s: %.6f\n", spec.Name, bestRaw[i])
		}

		bestCfg := *cfg
		if err := params.apply(&bestCfg, bestRaw); err != nil {
			logrus.Fatalf("applying best parameters: %v", err)
		}
		if tuneOutput != "" {
			outPath := filepath.Join(tuneOutput, "best_config.yaml")
			if err := bestCfg.WriteYAML(outPath); err != nil {
				logrus.Fatalf("writing best config: %v", err)
			}
			fmt.Printf("best config written to %s\n", outPath)
		}
	},
}

func init() {
	tuneCmd.Flags().StringVar(&tuneScenario, "scenario", "", "Scenario YAML (empty = embedded default)")
	tuneCmd.Flags().IntVar(&tuneTicks, "max-ticks", 20000, "Tick cap per trial")
	tuneCmd.Flags().IntVar(&tuneEvals, "max-evals", 60, "Evaluation budget")
	tuneCmd.Flags().StringVar(&tuneOutput, "output", "", "Directory for tune_log.csv and best_config.yaml")
	rootCmd.AddCommand(tuneCmd)
}
