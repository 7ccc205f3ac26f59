package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/claims/claims"
	"github.com/liamcoop/claims/classify"
	"github.com/liamcoop/claims/extract"
	"github.com/liamcoop/claims/pipeline"
	"github.com/liamcoop/claims/rules"
)

// DocumentOutput is the per-document result of classify and extract
type DocumentOutput struct {
	Path           string                      `json:"path" yaml:"path"`
	Classification claims.ClassificationResult `json:"classification" yaml:"classification"`
	Extraction     *claims.ExtractionResult    `json:"extraction,omitempty" yaml:"extraction,omitempty"`
}

// ExtractOutput is the result of the extract command
type ExtractOutput struct {
	Documents []DocumentOutput `json:"documents" yaml:"documents"`
	Fields    claims.Fields    `json:"fields" yaml:"fields"`
}

func newClassifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <document>...",
		Short: "Classify documents by type",
		Long: `Classify scores each document against the keyword lists of every
document type and reports the best match, its confidence, and the
alternative types.

Example:
  claimctl classify record.txt invoice.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := opts.service(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			classifier := classify.New(svc.Catalog)
			out := make([]DocumentOutput, 0, len(args))
			for _, path := range args {
				text, err := svc.Texts.Text(ctx, path)
				if err != nil {
					return err
				}
				out = append(out, DocumentOutput{
					Path:           path,
					Classification: classifier.ClassifyDocument(pipeline.DocumentID(path), text),
				})
			}
			return opts.print(cmd, out)
		},
	}
}

func newExtractCmd(opts *options) *cobra.Command {
	var docType string

	cmd := &cobra.Command{
		Use:   "extract <document>...",
		Short: "Extract fields from documents",
		Long: `Extract classifies each document (unless --type is given) and pulls
the fields defined for its type. The merged field set is printed after the
per-document results; later documents win on conflicting fields.

Example:
  claimctl extract record.txt invoice.txt
  claimctl extract --type invoice scan.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var forced claims.DocumentType
			if docType != "" {
				t, err := claims.ParseDocumentType(docType)
				if err != nil {
					return err
				}
				forced = t
			}

			ctx := cmd.Context()
			svc, err := opts.service(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			classifier := classify.New(svc.Catalog)
			extractor := extract.New(svc.Catalog)

			out := ExtractOutput{Documents: make([]DocumentOutput, 0, len(args))}
			var results []claims.ExtractionResult
			for _, path := range args {
				text, err := svc.Texts.Text(ctx, path)
				if err != nil {
					return err
				}
				id := pipeline.DocumentID(path)

				classification := classifier.ClassifyDocument(id, text)
				if forced != "" {
					classification = claims.ClassificationResult{DocumentID: id, PredictedType: forced, Confidence: 1}
				}
				extraction := extractor.ExtractDocument(id, text, classification.PredictedType)
				results = append(results, extraction)

				out.Documents = append(out.Documents, DocumentOutput{
					Path:           path,
					Classification: classification,
					Extraction:     &extraction,
				})
			}
			out.Fields = claims.MergeExtractionResults(results...)
			return opts.print(cmd, out)
		},
	}

	cmd.Flags().StringVar(&docType, "type", "", "skip classification and treat every document as this type")
	return cmd
}

func newEvaluateCmd(opts *options) *cobra.Command {
	var (
		fieldsFile string
		sets       []string
		policyName string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate liability for a set of fields",
		Long: `Evaluate runs the liability evaluation on fields read from a YAML or
JSON file and/or given with --set. Values given with --set have
confidence 1.

Example:
  claimctl evaluate --fields fields.yaml --policy accident_insurance
  claimctl evaluate --set diagnosis=急性阑尾炎 --set invoice_amount=1200`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := readFields(fieldsFile, sets)
			if err != nil {
				return err
			}

			svc, err := opts.service(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			eval, err := svc.Processor.EvaluateFields(fields, policyName)
			if err != nil {
				return err
			}
			return opts.print(cmd, eval)
		},
	}

	cmd.Flags().StringVar(&fieldsFile, "fields", "", "YAML or JSON file mapping field names to {value, confidence}")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field assignment name=value (repeatable)")
	cmd.Flags().StringVar(&policyName, "policy", "", "policy name (default: the configured default policy)")
	return cmd
}

// readFields merges a fields file with name=value assignments
func readFields(path string, sets []string) (claims.Fields, error) {
	fields := claims.Fields{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read fields file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("failed to parse fields file: %w", err)
		}
	}

	for _, set := range sets {
		name, value, ok := strings.Cut(set, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, want name=value", set)
		}
		fields[name] = claims.FieldValue{Value: value, Confidence: 1}
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields given; use --fields or --set")
	}
	return fields, nil
}

func newProcessCmd(opts *options) *cobra.Command {
	var policyName string

	cmd := &cobra.Command{
		Use:   "process <document>...",
		Short: "Run a claim through every stage",
		Long: `Process submits the documents as one claim, then classifies, extracts
and evaluates it, printing the claim report. A failed stage still prints
the report of the rejected claim.

Example:
  claimctl process record.txt invoice.txt contract.txt --policy health_insurance_basic`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := opts.service(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			claim, err := svc.Processor.Submit(ctx, args)
			if err != nil {
				return err
			}

			_, procErr := svc.Processor.Process(ctx, claim.ID, policyName)
			report, err := svc.Processor.Report(ctx, claim.ID)
			if err != nil {
				return err
			}
			if err := opts.print(cmd, report); err != nil {
				return err
			}
			return procErr
		},
	}

	cmd.Flags().StringVar(&policyName, "policy", "", "policy name (default: the configured default policy)")
	return cmd
}

func newPoliciesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			return opts.print(cmd, map[string]any{
				"default":  svc.Policies.DefaultName(),
				"policies": svc.Policies.List(),
			})
		},
	}
}

// RuleOutput is a risk rule as printed by the rules command
type RuleOutput struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Severity    claims.Severity `json:"severity" yaml:"severity"`
	Priority    int             `json:"priority" yaml:"priority"`
	Active      bool            `json:"active" yaml:"active"`
	Expression  string          `json:"expression" yaml:"expression"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
}

func newRulesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List risk rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			list, err := svc.Engine.Store().List()
			if err != nil {
				return err
			}
			rules.SortRules(list)

			out := make([]RuleOutput, 0, len(list))
			for _, r := range list {
				out = append(out, RuleOutput{
					ID:          r.ID,
					Name:        r.Name,
					Severity:    r.Severity,
					Priority:    r.Priority,
					Active:      r.Active,
					Expression:  r.Expression,
					Description: r.Description,
				})
			}
			return opts.print(cmd, out)
		},
	}
}
