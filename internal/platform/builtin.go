package platform

const tcgaIDDag = "tcga.iddag"

func agilent(name string) Platform {
	return Platform{Name: name, Kind: KindMatrix, Subtypes: []Subtype{{
		Name:        "geneExp",
		ProbeMap:    "hugo",
		SampleMap:   tcgaIDDag,
		ProbeFields: []string{"log2 lowess normalized (cy5/cy3) collapsed by gene symbol"},
		Extension:   "tsv",
	}}}
}

func cna(name, field string, censor Censor) Platform {
	return Platform{Name: name, Kind: KindSegment, Censor: censor, Subtypes: []Subtype{{
		Name:        "cna",
		SampleMap:   tcgaIDDag,
		ProbeFields: []string{field},
		Extension:   "bed",
	}}}
}

func snp6Subtype(name, include, field string) Subtype {
	return Subtype{
		Name:        name,
		SampleMap:   tcgaIDDag,
		FileInclude: include,
		ProbeFields: []string{field},
		ValueFields: []string{field, "Segment_Mean"},
		Extension:   "bed",
		Naming:      "{base}.hg19.{subtype}.bed",
	}
}

func mirna(name string) Platform {
	return Platform{Name: name, Kind: KindMatrix, Subtypes: []Subtype{{
		Name:        "miRNAExp",
		ProbeMap:    "agilentHumanMiRNA",
		SampleMap:   tcgaIDDag,
		ProbeFields: []string{"unc_DWD_Batch_adjusted"},
		Extension:   "tsv",
	}}}
}

func u133(name string) Platform {
	return Platform{Name: name, Kind: KindMatrix, Subtypes: []Subtype{{
		Name:        "geneExp",
		ProbeMap:    "affyU133a",
		SampleMap:   tcgaIDDag,
		ProbeFields: []string{"Signal"},
		Extension:   "tsv",
	}}}
}

func rnaseq(name, include string) Platform {
	return Platform{Name: name, Kind: KindMatrix, Subtypes: []Subtype{{
		Name:        "geneExp",
		SampleMap:   tcgaIDDag,
		FileInclude: include,
		ProbeFields: []string{"RPKM"},
		ProbeMap:    "hugo.unc",
		Extension:   "tsv",
	}}}
}

func rnaseqV2(name string) Platform {
	return Platform{Name: name, Kind: KindMatrix, Subtypes: []Subtype{
		{
			Name:        "geneExp",
			SampleMap:   tcgaIDDag,
			FileInclude: `^.*rsem.genes.normalized_results$|^.*sdrf.txt$`,
			ProbeFields: []string{"normalized_count"},
			ProbeMap:    "hugo.unc",
			Extension:   "tsv",
		},
		{
			Name:        "isoformExp",
			SampleMap:   tcgaIDDag,
			FileInclude: `^.*rsem.isoforms.results$`,
			ProbeFields: []string{"raw_count"},
			ProbeMap:    "ucsc.id",
			Extension:   "tsv",
		},
	}}
}

func mirnaSeq(name string) Platform {
	return Platform{Name: name, Kind: KindMatrix, Subtypes: []Subtype{{
		Name:        "miRNAExp",
		SampleMap:   tcgaIDDag,
		FileInclude: `^.*.mirna.quantification.txt$`,
		ProbeFields: []string{"reads_per_million_miRNA_mapped"},
		ProbeMap:    "hsa.mirna",
		Extension:   "tsv",
	}}}
}

func bio() Platform {
	p := Platform{Name: "bio", Kind: KindClinical}
	for _, entity := range []string{"patient", "sample", "radiation", "drug", "portion", "analyte", "aliquot", "followup"} {
		p.Subtypes = append(p.Subtypes, Subtype{
			Name:        entity,
			SampleMap:   tcgaIDDag,
			FileInclude: `.*.xml$`,
			Extension:   "tsv",
		})
	}
	return p
}

func maf(name string) Platform {
	return Platform{Name: name, Kind: KindPassthrough, Subtypes: []Subtype{{
		Name:        "maf",
		FileInclude: `.*.maf$`,
		Extension:   "maf",
		Naming:      "{base}.maf",
	}}}
}

var builtin = []Platform{
	agilent("AgilentG4502A_07"),
	agilent("AgilentG4502A_07_1"),
	agilent("AgilentG4502A_07_2"),
	agilent("AgilentG4502A_07_3"),
	cna("CGH-1x1M_G4447A", "seg.mean", CensorNone),
	{
		Name:          "Genome_Wide_SNP_6",
		Kind:          KindSegment,
		Scanner:       "snp6",
		Assembly:      "hg19",
		PreserveStart: true,
		Subtypes: []Subtype{
			snp6Subtype("cna", `^.*\.hg19.seg.txt$`, "seg.mean"),
			snp6Subtype("cna_nocnv", `^.*\.nocnv_hg19.seg.txt$`, "seg.mean"),
			snp6Subtype("cna_probecount", `^.*\.hg19.seg.txt$`, "Num_Probes"),
			snp6Subtype("cna_nocnv_probecount", `^.*\.nocnv_hg19.seg.txt$`, "Num_Probes"),
		},
	},
	mirna("H-miRNA_8x15K"),
	mirna("H-miRNA_8x15Kv2"),
	cna("HG-CGH-244A", "Segment_Mean", CensorNone),
	cna("HG-CGH-415K_G4124A", "Segment_Mean", CensorNone),
	u133("HT_HG-U133A"),
	u133("HG-U133_Plus_2"),
	{Name: "HuEx-1_0-st-v2", Kind: KindMatrix, Subtypes: []Subtype{{
		Name:        "miRNAExp",
		ProbeMap:    "hugo",
		SampleMap:   tcgaIDDag,
		FileInclude: `^.*gene.txt$|^.*sdrf.txt$`,
		ProbeFields: []string{"Signal"},
		Extension:   "tsv",
	}}},
	cna("Human1MDuo", "mean", CensorNone),
	cna("HumanHap550", "mean", CensorNone),
	cna("IlluminaHiSeq_DNASeqC", "Segment_Mean", CensorGermline),
	{Name: "HumanMethylation27", Kind: KindMatrix, Subtypes: []Subtype{{
		Name:        "betaValue",
		ProbeMap:    "illuminaMethyl27K_gpl8490",
		SampleMap:   tcgaIDDag,
		FileExclude: `.*.adf.txt`,
		ProbeFields: []string{"Beta_Value", "Beta_value"},
		Extension:   "tsv",
	}}},
	{Name: "HumanMethylation450", Kind: KindMatrix, Scanner: "methylation450", Subtypes: []Subtype{{
		Name:        "betaValue",
		ProbeMap:    "illuminaHumanMethylation450",
		SampleMap:   tcgaIDDag,
		FileExclude: `.*.adf.txt`,
		ProbeFields: []string{"Beta_value", "Beta_Value"},
		Extension:   "tsv",
	}}},
	rnaseq("IlluminaHiSeq_RNASeq", `^.*gene.quantification.txt$`),
	rnaseq("IlluminaGA_RNASeq", `^.*\.gene.quantification.txt$|^.*sdrf.txt$`),
	rnaseq("IlluminaGA_mRNA_DGE", `^.*\.gene.quantification.txt$|^.*sdrf.txt$`),
	rnaseqV2("IlluminaGA_RNASeqV2"),
	rnaseqV2("IlluminaHiSeq_RNASeqV2"),
	{Name: "MDA_RPPA_Core", Kind: KindMatrix, TargetCleanup: `\.SD`, Subtypes: []Subtype{{
		Name:        "RPPA",
		SampleMap:   tcgaIDDag,
		ProbeMap:    "md_anderson_antibodies",
		FileExclude: `^.*.antibody_annotation.txt|^.*array_design.txt$`,
		ProbeFields: []string{"Protein Expression", "Protein.Expression"},
		Extension:   "tsv",
	}}},
	mirnaSeq("IlluminaGA_miRNASeq"),
	mirnaSeq("IlluminaHiSeq_miRNASeq"),
	bio(),
	maf("IlluminaGA_DNASeq"),
	maf("SOLiD_DNASeq"),
	maf("ABI"),
	maf("Mutation Calling"),
}
