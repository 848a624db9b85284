package ai

import "strings"

// MutationKind classifies what an MCP tool does to a workbook.
type MutationKind string

// Known mutation kinds. KindRead and KindUnknown leave the file unchanged.
const (
	KindRead      MutationKind = "read"
	KindWrite     MutationKind = "write"
	KindStructure MutationKind = "structure"
	KindFormula   MutationKind = "formula"
	KindFormat    MutationKind = "format"
	KindChart     MutationKind = "chart"
	KindPivot     MutationKind = "pivot"
	KindTable     MutationKind = "table"
	KindSheet     MutationKind = "sheet"
	KindUnknown   MutationKind = "unknown"
)

// Modifies reports whether a successful call of this kind changes the file.
func (k MutationKind) Modifies() bool {
	return k != KindRead && k != KindUnknown
}

type toolInfo struct {
	kind   MutationKind
	phrase string
}

// tools maps the Excel MCP server's tool names to their kind and a phrase
// used when summarizing what the assistant did.
var tools = map[string]toolInfo{
	"read_data_from_excel":     {KindRead, "read your Excel data"},
	"get_workbook_metadata":    {KindRead, "inspected your workbook"},
	"validate_formula_syntax":  {KindRead, "checked a formula"},
	"validate_excel_range":     {KindRead, "checked a cell range"},
	"get_data_validation_info": {KindRead, "read the validation rules"},
	"get_merged_cells":         {KindRead, "looked up merged cells"},

	"write_data_to_excel": {KindWrite, "saved changes to your file"},
	"copy_range":          {KindWrite, "copied data"},

	"insert_rows":          {KindStructure, "added new data"},
	"insert_columns":       {KindStructure, "added new columns"},
	"delete_sheet_rows":    {KindStructure, "removed data"},
	"delete_sheet_columns": {KindStructure, "removed columns"},
	"delete_range":         {KindStructure, "removed data"},

	"apply_formula": {KindFormula, "applied formulas"},

	"format_range":  {KindFormat, "applied formatting"},
	"merge_cells":   {KindFormat, "merged cells"},
	"unmerge_cells": {KindFormat, "unmerged cells"},

	"create_chart":       {KindChart, "generated a chart"},
	"create_pivot_table": {KindPivot, "created a pivot table"},
	"create_table":       {KindTable, "created a table"},

	"create_workbook":  {KindSheet, "created a workbook"},
	"create_worksheet": {KindSheet, "added a worksheet"},
	"copy_worksheet":   {KindSheet, "copied a worksheet"},
	"delete_worksheet": {KindSheet, "deleted a worksheet"},
	"rename_worksheet": {KindSheet, "renamed a worksheet"},
}

// KindOf returns the kind of the named tool, or KindUnknown.
func KindOf(tool string) MutationKind {
	if info, ok := tools[strings.ToLower(strings.TrimSpace(tool))]; ok {
		return info.kind
	}
	return KindUnknown
}

// Describe returns a short past-tense phrase for a tool call.
func Describe(tool string) string {
	if info, ok := tools[strings.ToLower(strings.TrimSpace(tool))]; ok {
		return info.phrase
	}
	return "performed " + strings.ReplaceAll(tool, "_", " ")
}
