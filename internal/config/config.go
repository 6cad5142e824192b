// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Tree programs accepted by tree_program.
const (
	TreeFastTree = "fasttree"
	TreeRAxML    = "raxml"
	TreeRAxMLNG  = "raxml_ng"
)

// Config represents the settings that can be loaded from a JSON or YAML file.
// All fields are optional; missing values are filled by MergeWithDefaults.
type Config struct {
	// Paths
	OutputDir   string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"` // Prometheus textfile written after a run

	// Remote services
	CatalogBaseURL  string  `json:"catalog_base_url,omitempty" yaml:"catalog_base_url,omitempty" validate:"omitempty,url"`
	EutilsBaseURL   string  `json:"eutils_base_url,omitempty" yaml:"eutils_base_url,omitempty" validate:"omitempty,url"`
	DatasetsBaseURL string  `json:"datasets_base_url,omitempty" yaml:"datasets_base_url,omitempty" validate:"omitempty,url"`
	QuerySize       int     `json:"query_size,omitempty" yaml:"query_size,omitempty" validate:"omitempty,min=1,max=1000"`
	MaxFailures     int     `json:"max_failures,omitempty" yaml:"max_failures,omitempty" validate:"omitempty,min=1"`
	NCBIDelay       float64 `json:"ncbi_delay,omitempty" yaml:"ncbi_delay,omitempty" validate:"omitempty,min=0,max=60"` // seconds between E-utilities calls
	UseBrowser      bool    `json:"use_browser,omitempty" yaml:"use_browser,omitempty"`

	// Credentials, normally taken from the environment
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Email  string `json:"email,omitempty" yaml:"email,omitempty" validate:"omitempty,email"`
	Tool   string `json:"tool,omitempty" yaml:"tool,omitempty"`

	// External stages
	Threads     int    `json:"threads,omitempty" yaml:"threads,omitempty" validate:"omitempty,min=1"`
	TreeProgram string `json:"tree_program,omitempty" yaml:"tree_program,omitempty" validate:"omitempty,oneof=fasttree raxml raxml_ng"`
	Tools       Tools  `json:"tools,omitempty" yaml:"tools,omitempty"`

	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Tools holds the argv template of every external stage. Arguments may use
// the placeholders {input} {output} {threads} {model} {metadata} {tree}
// {group} and {outdir}; the extract template also gets {bounds}.
type Tools struct {
	Extract     []string            `json:"extract,omitempty" yaml:"extract,omitempty"`
	Align       []string            `json:"align,omitempty" yaml:"align,omitempty"`
	ModelSelect []string            `json:"model_select,omitempty" yaml:"model_select,omitempty"`
	Tree        map[string][]string `json:"tree,omitempty" yaml:"tree,omitempty"`
	Render      []string            `json:"render,omitempty" yaml:"render,omitempty"` // empty disables rendering
}

// Home is the per-user SACCHARIS folder, ~/saccharis.
func Home() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "saccharis")
}

// DefaultPath is where the settings file is looked up when --config is not given.
func DefaultPath() string {
	return filepath.Join(Home(), "config", "advanced_settings.json")
}

// DefaultThreads is three quarters of the logical CPUs, rounded up.
func DefaultThreads() int {
	n := int(math.Ceil(float64(runtime.NumCPU()) * 0.75))
	if n < 1 {
		return 1
	}
	return n
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		OutputDir:       filepath.Join(Home(), "output"),
		CatalogBaseURL:  "http://www.cazy.org",
		EutilsBaseURL:   "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
		DatasetsBaseURL: "https://api.ncbi.nlm.nih.gov/datasets/v2",
		QuerySize:       200,
		MaxFailures:     100,
		NCBIDelay:       0.3,
		Tool:            "saccharis",
		Threads:         DefaultThreads(),
		TreeProgram:     TreeFastTree,
		Tools: Tools{
			Extract: []string{"saccharis-extract", "--input", "{input}", "--output", "{output}",
				"--bounds", "{bounds}", "--outdir", "{outdir}", "--threads", "{threads}"},
			Align:       []string{"muscle", "-align", "{input}", "-output", "{output}", "-threads", "{threads}"},
			ModelSelect: []string{"saccharis-choose-model", "{input}", "{output}", "{threads}"},
			Tree: map[string][]string{
				TreeFastTree: {"FastTree", "-out", "{output}", "{input}"},
				TreeRAxML: {"sh", "-c", "raxmlHPC-PTHREADS -f a -x 12345 -p 12345 -N 100 -m PROTGAMMA{model} " +
					"-s {input} -n run -w {outdir} -T {threads} && cp {outdir}/RAxML_bipartitions.run {output}"},
				TreeRAxMLNG: {"sh", "-c", "raxml-ng --all --msa {input} --model {model} --threads {threads} " +
					"--prefix {outdir}/tree --redo && cp {outdir}/tree.raxml.support {output}"},
			},
		},
	}
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}
	return &cfg, nil
}

// Validate checks field ranges and that every configured tool template can
// receive its input and output.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if c.TreeProgram != "" && len(c.Tools.Tree) > 0 {
		if _, ok := c.Tools.Tree[c.TreeProgram]; !ok {
			return fmt.Errorf("config error: no tool template for tree_program %q", c.TreeProgram)
		}
	}

	templates := map[string][]string{
		"extract": c.Tools.Extract,
		"align":   c.Tools.Align,
	}
	for name, tmpl := range c.Tools.Tree {
		templates["tree."+name] = tmpl
	}
	for name, tmpl := range templates {
		if len(tmpl) == 0 {
			continue
		}
		joined := strings.Join(tmpl, " ")
		if !strings.Contains(joined, "{input}") || !strings.Contains(joined, "{output}") {
			return fmt.Errorf("config error: tool template %q must use {input} and {output}", name)
		}
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.OutputDir == "" {
		result.OutputDir = defaults.OutputDir
	}
	if result.MetricsFile == "" {
		result.MetricsFile = defaults.MetricsFile
	}
	if result.CatalogBaseURL == "" {
		result.CatalogBaseURL = defaults.CatalogBaseURL
	}
	if result.EutilsBaseURL == "" {
		result.EutilsBaseURL = defaults.EutilsBaseURL
	}
	if result.DatasetsBaseURL == "" {
		result.DatasetsBaseURL = defaults.DatasetsBaseURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.Email == "" {
		result.Email = defaults.Email
	}
	if result.Tool == "" {
		result.Tool = defaults.Tool
	}
	if result.TreeProgram == "" {
		result.TreeProgram = defaults.TreeProgram
	}

	if result.QuerySize == 0 {
		result.QuerySize = defaults.QuerySize
	}
	if result.MaxFailures == 0 {
		result.MaxFailures = defaults.MaxFailures
	}
	if result.NCBIDelay == 0 {
		result.NCBIDelay = defaults.NCBIDelay
	}
	if result.Threads == 0 {
		result.Threads = defaults.Threads
	}

	if len(result.Tools.Extract) == 0 {
		result.Tools.Extract = defaults.Tools.Extract
	}
	if len(result.Tools.Align) == 0 {
		result.Tools.Align = defaults.Tools.Align
	}
	if len(result.Tools.ModelSelect) == 0 {
		result.Tools.ModelSelect = defaults.Tools.ModelSelect
	}
	if len(result.Tools.Render) == 0 {
		result.Tools.Render = defaults.Tools.Render
	}
	tree := make(map[string][]string, len(defaults.Tools.Tree)+len(result.Tools.Tree))
	for name, tmpl := range defaults.Tools.Tree {
		tree[name] = tmpl
	}
	for name, tmpl := range result.Tools.Tree {
		tree[name] = tmpl
	}
	result.Tools.Tree = tree

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// Delay returns NCBIDelay as a duration.
func (c *Config) Delay() time.Duration {
	return time.Duration(math.Round(c.NCBIDelay * float64(time.Second)))
}

// TreeTool returns the argv template of the selected tree program.
func (c *Config) TreeTool() []string {
	return c.Tools.Tree[c.TreeProgram]
}
