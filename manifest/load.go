package manifest

import (
	"bytes"
	"errors"
	"io/fs"

	"github.com/albertocavalcante/go-modrt/resource"
)

// ReadHeaders reads bundle headers from content: META-INF/MANIFEST.MF when
// present, otherwise a BUNDLE.bazel descriptor.
func ReadHeaders(content resource.Content) (map[string]string, error) {
	data, err := content.ReadFile(ManifestPath)
	if err == nil {
		return ReadManifest(bytes.NewReader(data))
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	data, err = content.ReadFile(DescriptorPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ManifestError{Detail: "content has neither " + ManifestPath + " nor " + DescriptorPath}
		}
		return nil, err
	}
	return ParseStarlark(DescriptorPath, data)
}

// Load reads, multi-release adjusts, and parses the manifest of content.
// headers, when non-nil, is used instead of reading from content.
func Load(headers map[string]string, content resource.Content, runtime int) (*Descriptor, error) {
	if headers == nil {
		var err error
		if headers, err = ReadHeaders(content); err != nil {
			return nil, err
		}
	}
	headers, err := ApplyMultiRelease(headers, content, runtime)
	if err != nil {
		return nil, err
	}
	return ParseHeaders(headers)
}
