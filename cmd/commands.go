package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/damagegraph-backend/internal/app"
	"github.com/yungbote/damagegraph-backend/internal/bim/ifc"
	"github.com/yungbote/damagegraph-backend/internal/data/graph"
	"github.com/yungbote/damagegraph-backend/internal/domain/damage"
	"github.com/yungbote/damagegraph-backend/internal/domain/temporal"
	httpMW "github.com/yungbote/damagegraph-backend/internal/http/middleware"
	"github.com/yungbote/damagegraph-backend/internal/ontology"
	"github.com/yungbote/damagegraph-backend/internal/ontology/rdf"
	"github.com/yungbote/damagegraph-backend/internal/platform/envutil"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
	"github.com/yungbote/damagegraph-backend/internal/platform/shutdown"
	"github.com/yungbote/damagegraph-backend/internal/services"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(envutil.String("LOG_MODE", "development"))
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			ctx, stop := shutdown.NotifyContext(context.Background(), log.With("cmd", "serve"))
			defer stop()

			a, err := app.New(ctx)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			defer a.Close()
			return a.Run(ctx)
		},
	}
}

// offlinePipeline builds a pipeline with no audit store for the file based commands.
func offlinePipeline(configPath string) (services.PipelineService, *logger.Logger, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, nil, err
	}
	if configPath == "" {
		configPath = envutil.String("ONTOLOGY_CONFIG_PATH", "")
	}
	cfg, err := ontology.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	return services.NewPipelineService(log, cfg.Options(), nil, nil), log, nil
}

func readDetections(path string) ([]damage.Detection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open detections: %w", err)
	}
	defer f.Close()
	return damage.DecodeInference(f)
}

func projectCmd() *cobra.Command {
	var input, output, format, configPath string
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project an inference file onto the damage ontology",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmtName, err := rdf.ParseFormat(format)
			if err != nil {
				return err
			}
			pipeline, log, err := offlinePipeline(configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			dets, err := readDetections(input)
			if err != nil {
				return err
			}
			snap, err := pipeline.Project(cmd.Context(), dets, input)
			if err != nil {
				return err
			}
			for _, md := range snap.Malformed {
				log.Warn("skipped detection", "error", md.Error())
			}
			out, err := snap.Serialize(fmtName)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), out)
				return err
			}
			if err := os.WriteFile(output, []byte(out), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d damages, %d elements, %d malformed -> %s\n",
				len(snap.Damages), len(snap.Elements), len(snap.Malformed), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "inference results JSON")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when empty)")
	cmd.Flags().StringVarP(&format, "format", "f", string(rdf.FormatTurtle), "turtle or ntriples")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "ontology YAML config")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// readOntology parses and merges saved N-Triples ontology files.
func readOntology(paths []string) (*rdf.Graph, error) {
	merged := rdf.NewGraph()
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open ontology: %w", err)
		}
		g, err := rdf.ParseNTriples(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		merged.Merge(g)
	}
	return merged, nil
}

func linkCmd() *cobra.Command {
	var input, modelPath, output, rdfOut, configPath string
	var ontologies []string
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Attach projected damages to an IFC model",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (input == "") == (len(ontologies) == 0) {
				return fmt.Errorf("link: set exactly one of --input or --ontology")
			}
			pipeline, log, err := offlinePipeline(configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			model, err := ifc.Open(modelPath)
			if err != nil {
				return err
			}
			var res *services.LinkResult
			if input != "" {
				dets, err := readDetections(input)
				if err != nil {
					return err
				}
				res, err = pipeline.Link(cmd.Context(), dets, model, modelPath)
				if err != nil {
					return err
				}
			} else {
				g, err := readOntology(ontologies)
				if err != nil {
					return err
				}
				res, err = pipeline.LinkOntology(cmd.Context(), g, model, modelPath)
				if err != nil {
					return err
				}
			}
			if output == "" {
				output = strings.TrimSuffix(modelPath, ".ifc") + "_with_damage.ifc"
			}
			if err := model.WriteFile(output); err != nil {
				return err
			}
			if rdfOut != "" && res.Snapshot != nil {
				ttl, err := res.Snapshot.Serialize(rdf.FormatTurtle)
				if err != nil {
					return err
				}
				if err := os.WriteFile(rdfOut, []byte(ttl), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", rdfOut, err)
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res.Report)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "inference results JSON")
	cmd.Flags().StringSliceVar(&ontologies, "ontology", nil, "saved N-Triples ontology files to link instead of --input")
	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "IFC model to link into")
	cmd.Flags().StringVarP(&output, "output", "o", "", "linked IFC output (default <model>_with_damage.ifc)")
	cmd.Flags().StringVar(&rdfOut, "rdf-out", "", "also write the projected ontology as Turtle")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "ontology YAML config")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func ingestCmd() *cobra.Command {
	var file, policy string
	var replace bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a damage timeline document into Neo4j",
		RunE: func(cmd *cobra.Command, args []string) error {
			var pol graph.InvalidPolicy
			if policy != "" {
				p, err := graph.ParseInvalidPolicy(policy)
				if err != nil {
					return err
				}
				pol = p
			}
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open %s: %w", file, err)
			}
			defer f.Close()
			doc, err := temporal.DecodeDocument(f)
			if err != nil {
				return err
			}

			log, err := logger.New(envutil.String("LOG_MODE", "development"))
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			ctx, stop := shutdown.NotifyContext(cmd.Context(), log.With("cmd", "ingest", "file", file))
			defer stop()
			a, err := app.New(ctx)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			defer a.Close()

			report, err := a.Services.DamageGraph.Ingest(ctx, services.IngestRequest{
				Document:      doc,
				Policy:        pol,
				ReplaceEpochs: replace,
				Source:        file,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "damage timeline JSON")
	cmd.Flags().StringVar(&policy, "invalid-policy", "", "abort or skip (default from GRAPH_INGEST_INVALID_POLICY)")
	cmd.Flags().BoolVar(&replace, "replace-epochs", false, "clear existing epochs before ingesting")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func sampleIFCCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "sample-ifc",
		Short: "Write the example building model",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := ifc.NewSampleModel()
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return model.Write(cmd.OutOrStdout())
			}
			return model.WriteFile(output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "sample_structure.ifc", "output path")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token signed with AUTH_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := httpMW.IssueToken(envutil.String("AUTH_JWT_SECRET", ""), subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
