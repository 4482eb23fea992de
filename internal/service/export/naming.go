package export

import (
	"fmt"
	"strconv"
	"strings"
)

const defaultPadding = 3

// BaseName strips a trailing .pdf extension, ignoring case.
func BaseName(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return name[:len(name)-len(".pdf")]
	}
	return name
}

// FolderName is the single top-level folder of an export archive.
func FolderName(documentName string) string {
	return BaseName(documentName) + "_images"
}

// ArchiveName names the export archive, marking selection-only exports.
func ArchiveName(documentName string, dpi int, onlySelected bool) string {
	selection := ""
	if onlySelected {
		selection = "selection_"
	}
	return fmt.Sprintf("%s_%s%ddpi.zip", BaseName(documentName), selection, dpi)
}

// PageStem is Page_004 when padded (width = digits of totalPages) or page_4 otherwise.
func PageStem(pageNumber, totalPages int, padded bool) string {
	if !padded {
		return "page_" + strconv.Itoa(pageNumber)
	}
	width := defaultPadding
	if totalPages > 0 {
		width = len(strconv.Itoa(totalPages))
	}
	return fmt.Sprintf("Page_%0*d", width, pageNumber)
}

// EntryName names a page inside the archive.
func EntryName(pageNumber, totalPages int, ext string, padded bool) string {
	return PageStem(pageNumber, totalPages, padded) + "." + ext
}

// DownloadName names a single page download, embedding the resolution.
func DownloadName(pageNumber, totalPages, dpi int, ext string, padded bool) string {
	return fmt.Sprintf("%s_%ddpi.%s", PageStem(pageNumber, totalPages, padded), dpi, ext)
}
