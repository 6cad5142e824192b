package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/saccharis/SACCHARIS-2/internal/fasta"
	"github.com/saccharis/SACCHARIS-2/internal/types"
)

// GroupFolderName names the output folder of one group run.
func GroupFolderName(group string, mode types.ScrapeMode, domains types.DomainSet, prune, keepFragments bool) string {
	name := fmt.Sprintf("%s_%s_%s", group, mode, domains.DirName())
	if !prune {
		name += "_noprune"
	}
	if keepFragments {
		name += "_withfrags"
	}
	return name
}

// Layout is the folder tree of one group run.
type Layout struct {
	Root       string
	Catalog    string
	User       string
	Extract    string
	Align      string
	ModelTest  string
	Tree       string
	Render     string
	TreeFolder string
}

// NewLayout places the stage folders of a group under root.
func NewLayout(root, treeProgram string) Layout {
	return Layout{
		Root:       root,
		Catalog:    filepath.Join(root, "cazy"),
		User:       filepath.Join(root, "user"),
		Extract:    filepath.Join(root, "dbcan"),
		Align:      filepath.Join(root, "muscle"),
		ModelTest:  filepath.Join(root, "modeltest"),
		Tree:       filepath.Join(root, treeProgram),
		Render:     filepath.Join(root, "render"),
		TreeFolder: treeProgram,
	}
}

// Artifacts accumulates what the stages of one group have produced. Each
// stage reads the fields set by earlier stages and fills its own in Load.
type Artifacts struct {
	RunID   string
	Group   string
	Mode    types.ScrapeMode
	Domains types.DomainSet
	Layout  Layout

	// ACQUIRE
	CatalogRecords   types.RecordMap
	CatalogSequences []fasta.Record
	Stats            types.ScrapeStats

	// MERGE
	Run        types.RunIdentity
	InputFasta string
	Records    types.RecordMap
	Sequences  []fasta.Record

	// EXTRACT
	PrunedFasta  string
	BoundsFile   string
	MetadataFile string
	Modules      []fasta.Record

	// ALIGN
	Alignment string

	// MODEL_SELECT
	ModelFile string
	Model     string

	// TREE_BUILD
	RawTree      string
	TreeFile     string
	SettingsFile string

	// RENDER
	RenderDone string
}

// Base is the common prefix of output file names, e.g. PL9_CHARACTERIZED.
func (a *Artifacts) Base() string {
	return fmt.Sprintf("%s_%s", a.Group, a.Mode)
}

// RunBase is Base plus the user run suffix of a merged run.
func (a *Artifacts) RunBase() string {
	return a.Base() + a.Run.Suffix()
}
