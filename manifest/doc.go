// Package manifest parses bundle manifests into capabilities and
// requirements.
//
// A manifest is a flat map of headers. Headers are usually read from a
// META-INF/MANIFEST.MF file with ReadManifest, or produced from a Starlark
// BUNDLE.bazel descriptor with ParseStarlark. ParseHeaders turns the header
// map into a Descriptor, and Descriptor.NewRevision binds a descriptor to an
// installed bundle:
//
//	headers, _ := manifest.ReadManifest(r)
//	desc, err := manifest.ParseHeaders(headers)
//	if err != nil {
//		var me *manifest.ManifestError
//		errors.As(err, &me) // me.Header names the offending header
//	}
//	rev := desc.NewRevision(id, 1, location, content)
//
// # Header grammar
//
// Most headers share one clause grammar:
//
//	header    = clause ( ',' clause )*
//	clause    = path ( ';' path )* ( ';' parameter )*
//	parameter = name ( ':=' | '=' | ':' type '=' ) value
//
// Values may be double-quoted to include ',', ';' or '='.
//
// # Multi-release content
//
// Content entries under META-INF/versions/{N}/ override base entries for
// runtimes at version N or later. See OverlaySet. A supplemental manifest at
// META-INF/versions/{N}/OSGI-INF/MANIFEST.MF replaces Import-Package and
// Require-Capability for those runtimes; see ApplyMultiRelease.
package manifest
