// models/mapping.go
package models

// VariableMapping maps the short DWD variable keys used in filenames and
// directory names (e.g. "relhum") to the column names that appear in
// converted tabular files (e.g. "r", the GRIB short name). Constructed once
// per process and treated as read-only afterwards.
type VariableMapping map[string]string

// Column returns the tabular column name for a variable key, or the key
// itself when no mapping entry exists.
func (m VariableMapping) Column(variable string) string {
	if m == nil {
		return variable
	}
	if mapped, ok := m[variable]; ok {
		return mapped
	}
	return variable
}

// DefaultVariableMapping returns the fixed ICON-D2 single-level variable
// table. Key columns map to themselves so that callers can run a whole
// column set through Column without special-casing.
func DefaultVariableMapping() VariableMapping {
	return VariableMapping{
		"latitude":   "latitude",
		"longitude":  "longitude",
		"valid_time": "valid_time",
		"aswdifd_s":  "ASWDIFD_S",
		"aswdir_s":   "ASWDIR_S",
		"cape_ml":    "CAPE_ML",
		"clch":       "CLCH",
		"clcl":       "CLCL",
		"clcm":       "CLCM",
		"clct":       "CLCT",
		"grau_gsp":   "tgrp",
		"h_snow":     "sde",
		"prg_gsp":    "PRG_GSP",
		"prr_gsp":    "lsrr",
		"prs_gsp":    "lssfr",
		"ps":         "sp",
		"q_sedim":    "Q_SEDIM",
		"rain_con":   "crr",
		"rain_gsp":   "lsrr",
		"relhum":     "r",
		"relhum_2m":  "r2",
		"rho_snow":   "rsn",
		"runoff_g":   "RUNOFF_G",
		"runoff_s":   "RUNOFF_S",
		"smi":        "SMI",
		"snow_con":   "csfwe",
		"snow_gsp":   "lsfwe",
		"soiltyp":    "SOILTYP",
		"td_2m":      "d2m",
		"tke":        "tke",
		"tmax_2m":    "mx2t",
		"tmin_2m":    "mn2t",
		"tot_prec":   "tp",
		"tqc":        "TQC",
		"tqg":        "TQG",
		"tqi":        "TQI",
		"tqr":        "tcolr",
		"tqs":        "tcols",
		"tqv":        "TQV",
		"twater":     "TWATER",
		"t_2m":       "t2m",
		"t_g":        "T_G",
		"t_snow":     "T_SNOW",
		"t_so":       "T_SO",
		"u":          "u",
		"uh_max":     "UH_MAX",
		"uh_max_low": "UH_MAX_LOW",
		"uh_max_med": "UH_MAX_MED",
		"u_10m":      "u10",
		"v":          "v",
		"vis":        "vis",
		"vmax_10m":   "fg10",
		"vorw_ctmax": "VORW_CTMAX",
		"v_10m":      "v10",
		"w":          "wz",
		"ww":         "WW",
		"w_ctmax":    "W_CTMAX",
		"w_so":       "W_SO",
		"w_so_ice":   "W_SO_ICE",
		"z0":         "fsr",
	}
}
