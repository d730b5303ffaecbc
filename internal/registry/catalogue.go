package registry

import "path/filepath"

// defaultCatalogue lists the curated miRNA datasets by category. Every entry is
// a CSV file expected in the data directory.
var defaultCatalogue = []struct {
	category string
	files    []string
}{
	// Sequence and annotation records.
	{"core_mirna", []string{
		"merged_mirBase.csv",
		"miRstart_human_miRNA_information.csv",
	}},
	// Transcription start sites.
	{"core_gene", []string{
		"miRstart_human_miRNA_TSS_information.csv",
	}},
	// Disease associations.
	{"core_disease", []string{
		"HMDD.csv",
		"dbDEMC_low_throughput.csv",
		"miRcancer.csv",
		"plasmiR.csv",
	}},
	// SNP associations.
	{"core_snp", []string{
		"miRNASNPv4_SNP_associations_multiCancer_celltype.csv",
		"miRNASNPv4_pre-miRNA_variants.csv",
		"miRNet-snp-mir-hsa.csv",
		"MiRNet-snpmirbs-hsa.csv",
	}},
	// Drug interactions.
	{"core_drug", []string{
		"miRNet-mir-mol-hsa.csv",
		"ncDR_Curated_DRmiRNA.csv",
		"ncDR_Predicted_DRmiRNA.csv",
	}},
	// Similarity metadata.
	{"core_metadata", []string{
		"miRNA_similarity_scores_ALL.csv",
	}},
	// Cross-molecule relationships.
	{"relationships", []string{
		"miRNet-mir-tf-hsa.csv",
		"miRNet-mir-epi-hsa.csv",
		"miRNet-mir-lncRNA.csv",
		"miRNet-mir-pseudogene.csv",
		"miRNet-mir-sncRNA.csv",
	}},
}

// Default returns the built-in catalogue with every file resolved under dataDir.
func Default(dataDir string) *Registry {
	cats := make([]Category, 0, len(defaultCatalogue))
	for _, c := range defaultCatalogue {
		cat := Category{Name: c.category}
		for _, f := range c.files {
			cat.Sources = append(cat.Sources, SourceItem{
				Name:        f,
				Acquisition: LocalFile{Path: filepath.Join(dataDir, f)},
			})
		}
		cats = append(cats, cat)
	}

	r, err := New(cats)
	if err != nil {
		// The built-in catalogue is static; failing here is a programming error.
		panic(err)
	}
	return r
}
