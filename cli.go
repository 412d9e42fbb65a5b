package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Tutortoise/pet-match-service/config"
	"github.com/Tutortoise/pet-match-service/similarity"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "petmatch",
		Short:        "Match photos of found pets against lost pet reports",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newCompareCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP matching service",
		Long: `Run the HTTP matching service.

Settings are read from PETMATCH_* environment variables (DEBUG=true enables
per-request timing logs). Flags given on the command line take precedence.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := applyServeFlags(cmd, cfg); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("addr", config.DefaultAddr, "Address to listen on")
	cmd.Flags().String("db-driver", config.DefaultDBDriver, "Gallery database driver (postgres or sqlite3)")
	cmd.Flags().String("db-dsn", config.DefaultDBDSN, "Gallery database DSN")
	cmd.Flags().String("image-root", config.DefaultImageRoot, "Directory report image references are resolved against")
	cmd.Flags().String("public-base-url", "", "Base URL prepended to relative image references in responses")
	cmd.Flags().Bool("migrate", false, "Create the gallery tables if they are missing")
	cmd.Flags().Bool("debug", false, "Log per-request timings and skipped gallery items")
	return cmd
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	for name, dst := range map[string]*string{
		"addr":            &cfg.Addr,
		"db-driver":       &cfg.DBDriver,
		"db-dsn":          &cfg.DBDSN,
		"image-root":      &cfg.ImageRoot,
		"public-base-url": &cfg.PublicBaseURL,
	} {
		if flags.Changed(name) {
			v, err := flags.GetString(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}
	for name, dst := range map[string]*bool{
		"migrate": &cfg.Migrate,
		"debug":   &cfg.Debug,
	} {
		if flags.Changed(name) {
			v, err := flags.GetBool(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}
	return cfg.Validate()
}

// CompareReport is the pairwise breakdown printed by the compare command.
type CompareReport struct {
	Query     string `json:"query"`
	Candidate string `json:"candidate"`
	similarity.Breakdown
	Matched bool `json:"matched"`

	// PerceptualHashDistance is the pHash Hamming distance, shown next to
	// the heuristic for reference. It does not affect the score.
	PerceptualHashDistance int `json:"perceptual_hash_distance"`
}

func newCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <query-image> <candidate-image>",
		Short: "Print the similarity breakdown of two image files",
		Example: `  # Compare a found-pet photo with a report photo
  petmatch compare found.jpg uploads/lost_pets/42.jpg`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			a, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			b, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			report, err := compareImages(cfg.Similarity, a, b)
			if err != nil {
				return err
			}
			report.Query, report.Candidate = args[0], args[1]

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	return cmd
}

func compareImages(cfg similarity.Config, query, candidate []byte) (*CompareReport, error) {
	qImg, err := imaging.Decode(bytes.NewReader(query), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("query: %w: %v", similarity.ErrDecode, err)
	}
	cImg, err := imaging.Decode(bytes.NewReader(candidate), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("candidate: %w: %v", similarity.ErrDecode, err)
	}

	qPlanes, err := similarity.NormalizeImage(qImg, cfg.CanonicalSize)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	cPlanes, err := similarity.NormalizeImage(cImg, cfg.CanonicalSize)
	if err != nil {
		return nil, fmt.Errorf("candidate: %w", err)
	}

	bd := similarity.Score(similarity.Extract(qPlanes, cfg), similarity.Extract(cPlanes, cfg), cfg)

	qHash, err := goimagehash.PerceptionHash(qImg)
	if err != nil {
		return nil, fmt.Errorf("query perceptual hash: %w", err)
	}
	cHash, err := goimagehash.PerceptionHash(cImg)
	if err != nil {
		return nil, fmt.Errorf("candidate perceptual hash: %w", err)
	}
	distance, err := qHash.Distance(cHash)
	if err != nil {
		return nil, err
	}

	return &CompareReport{
		Breakdown:              bd,
		Matched:                bd.Overall >= cfg.MatchThreshold,
		PerceptualHashDistance: distance,
	}, nil
}
