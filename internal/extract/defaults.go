package extract

// Tools names the external binaries and OCR languages.
type Tools struct {
	PDFToText string
	PDFToPPM  string
	Tesseract string
	Languages string
}

var imageExts = []string{".png", ".jpg", ".jpeg", ".tiff", ".bmp"}

// NewDefaultRegistry wires text, PDF and image extractors onto runner.
func NewDefaultRegistry(runner CommandRunner, tools Tools) *Registry {
	if runner == nil {
		runner = ExecRunner{}
	}
	r := NewRegistry()
	r.Register(".txt", TextExtractor{})
	r.Register(".md", TextExtractor{})
	r.Register(".pdf", &PDFExtractor{
		Runner:    runner,
		PDFToText: tools.PDFToText,
		PDFToPPM:  tools.PDFToPPM,
		Tesseract: tools.Tesseract,
		Languages: tools.Languages,
	})
	img := &ImageExtractor{Runner: runner, Tesseract: tools.Tesseract, Languages: tools.Languages}
	for _, ext := range imageExts {
		r.Register(ext, img)
	}
	return r
}
