package manifest

import (
	"strconv"
	"strings"

	"github.com/albertocavalcante/go-modrt/filter"
	"github.com/albertocavalcante/go-modrt/resource"
	"github.com/albertocavalcante/go-modrt/version"
)

// Header names.
const (
	HeaderManifestVersion   = "Bundle-ManifestVersion"
	HeaderSymbolicName      = "Bundle-SymbolicName"
	HeaderVersion           = "Bundle-Version"
	HeaderExportPackage     = "Export-Package"
	HeaderImportPackage     = "Import-Package"
	HeaderDynamicImport     = "DynamicImport-Package"
	HeaderRequireBundle     = "Require-Bundle"
	HeaderFragmentHost      = "Fragment-Host"
	HeaderNativeCode        = "Bundle-NativeCode"
	HeaderRequiredEE        = "Bundle-RequiredExecutionEnvironment"
	HeaderRequireCapability = "Require-Capability"
	HeaderProvideCapability = "Provide-Capability"
	HeaderClassPath         = "Bundle-ClassPath"
	HeaderActivationPolicy  = "Bundle-ActivationPolicy"
	HeaderActivator         = "Bundle-Activator"
	HeaderMultiRelease      = "Multi-Release"
)

const (
	fragmentAttachmentDirective = "fragment-attachment"
	extensionDirective          = "extension"
	specificationVersionAttr    = "specification-version"
)

// Descriptor is the typed form of a bundle manifest.
type Descriptor struct {
	ManifestVersion int
	SymbolicName    string
	Version         version.Version
	Singleton       bool
	Fragment        bool
	Activator       string
	Activation      resource.Activation
	Classpath       []string
	NativeCode      resource.NativeCode
	MultiRelease    bool
	Capabilities    []*resource.Capability
	Requirements    []*resource.Requirement
	Headers         map[string]string
}

// ParseHeaders builds a Descriptor from raw headers.
func ParseHeaders(headers map[string]string) (*Descriptor, error) {
	d := &Descriptor{Headers: headers, ManifestVersion: 2}

	if mv := strings.TrimSpace(headers[HeaderManifestVersion]); mv != "" {
		n, err := strconv.Atoi(mv)
		if err != nil || n < 1 {
			return nil, headerError(HeaderManifestVersion, err, "invalid value %q", mv)
		}
		d.ManifestVersion = n
	}

	if err := d.parseIdentity(); err != nil {
		return nil, err
	}

	steps := []func() error{
		d.parseFragmentHost,
		d.parseExports,
		d.parseImports,
		d.parseDynamicImports,
		d.parseRequireBundle,
		d.parseExecutionEnvironment,
		d.parseRequireCapability,
		d.parseProvideCapability,
		d.parseNativeCode,
		d.parseClasspath,
		d.parseActivation,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	d.Activator = strings.TrimSpace(headers[HeaderActivator])
	d.MultiRelease = strings.EqualFold(strings.TrimSpace(headers[HeaderMultiRelease]), "true")
	return d, nil
}

// NewRevision binds the descriptor to an installed bundle.
func (d *Descriptor) NewRevision(bundleID, generation int64, location string, content resource.Content) *resource.Revision {
	return resource.NewRevision(resource.RevisionParams{
		BundleID:     bundleID,
		Generation:   generation,
		Location:     location,
		SymbolicName: d.SymbolicName,
		Version:      d.Version,
		Capabilities: d.Capabilities,
		Requirements: d.Requirements,
		Content:      content,
		Classpath:    d.Classpath,
		NativeCode:   d.NativeCode,
		Activation:   d.Activation,
		Activator:    d.Activator,
		Fragment:     d.Fragment,
		Singleton:    d.Singleton,
		MultiRelease: d.MultiRelease,
		Headers:      d.Headers,
	})
}

func (d *Descriptor) clauses(header string) ([]Clause, error) {
	v, ok := d.Headers[header]
	if !ok || strings.TrimSpace(v) == "" {
		return nil, nil
	}
	cs, err := ParseClauses(v)
	if err != nil {
		return nil, headerError(header, err, "malformed clause")
	}
	return cs, nil
}

func (d *Descriptor) parseIdentity() error {
	cs, err := d.clauses(HeaderSymbolicName)
	if err != nil {
		return err
	}
	if len(cs) == 0 {
		return headerError(HeaderSymbolicName, nil, "missing mandatory header")
	}
	if len(cs) > 1 || len(cs[0].Paths) > 1 {
		return headerError(HeaderSymbolicName, nil, "exactly one symbolic name expected")
	}
	c := cs[0]
	d.SymbolicName = c.Paths[0]

	if raw, ok := d.Headers[HeaderVersion]; ok {
		v, err := version.Parse(raw)
		if err != nil {
			return headerError(HeaderVersion, err, "malformed version")
		}
		d.Version = v
	}

	switch s := c.Directives[resource.DirectiveSingleton]; s {
	case "", "false":
	case "true":
		d.Singleton = true
	default:
		return headerError(HeaderSymbolicName, nil, "invalid singleton directive %q", s)
	}

	_, d.Fragment = d.Headers[HeaderFragmentHost]

	identityType := resource.TypeBundle
	if d.Fragment {
		identityType = resource.TypeFragment
	}
	identityDirs := map[string]string{}
	if d.Singleton {
		identityDirs[resource.DirectiveSingleton] = "true"
	}
	d.Capabilities = append(d.Capabilities, resource.NewCapability(resource.IdentityNamespace, map[string]any{
		resource.IdentityNamespace: d.SymbolicName,
		resource.AttrType:          identityType,
		resource.AttrVersion:       d.Version,
	}, identityDirs))

	if d.Fragment {
		return nil
	}

	attrs, err := typedAttributes(HeaderSymbolicName, c)
	if err != nil {
		return err
	}
	bundleAttrs := map[string]any{
		resource.BundleNamespace:   d.SymbolicName,
		resource.AttrBundleVersion: d.Version,
	}
	hostAttrs := map[string]any{
		resource.HostNamespace:     d.SymbolicName,
		resource.AttrBundleVersion: d.Version,
	}
	for k, v := range attrs {
		bundleAttrs[k] = v
		hostAttrs[k] = v
	}
	d.Capabilities = append(d.Capabilities, resource.NewCapability(resource.BundleNamespace, bundleAttrs, copyDirs(c.Directives, resource.DirectiveSingleton)))
	if c.Directives[fragmentAttachmentDirective] != "never" {
		d.Capabilities = append(d.Capabilities, resource.NewCapability(resource.HostNamespace, hostAttrs, copyDirs(c.Directives, resource.DirectiveSingleton)))
	}
	return nil
}

func (d *Descriptor) parseFragmentHost() error {
	cs, err := d.clauses(HeaderFragmentHost)
	if err != nil {
		return err
	}
	if !d.Fragment {
		return nil
	}
	if len(cs) != 1 || len(cs[0].Paths) != 1 {
		return headerError(HeaderFragmentHost, nil, "exactly one host expected")
	}
	c := cs[0]
	f, err := requirementFilter(HeaderFragmentHost, resource.HostNamespace, c.Paths[0], c, resource.AttrBundleVersion)
	if err != nil {
		return err
	}
	d.Requirements = append(d.Requirements, resource.NewRequirement(resource.HostNamespace, f,
		map[string]any{resource.HostNamespace: c.Paths[0]}, copyDirs(c.Directives, extensionDirective)))
	return nil
}

func (d *Descriptor) parseExports() error {
	cs, err := d.clauses(HeaderExportPackage)
	if err != nil {
		return err
	}
	for _, c := range cs {
		attrs, err := typedAttributes(HeaderExportPackage, c)
		if err != nil {
			return err
		}
		if _, ok := attrs[resource.AttrVersion]; !ok {
			if sv, ok := attrs[specificationVersionAttr]; ok {
				attrs[resource.AttrVersion] = sv
			} else {
				attrs[resource.AttrVersion] = version.Empty
			}
		}
		if err := coerceVersion(HeaderExportPackage, attrs, resource.AttrVersion); err != nil {
			return err
		}
		delete(attrs, specificationVersionAttr)
		for _, pkg := range c.Paths {
			a := map[string]any{resource.PackageNamespace: pkg}
			for k, v := range attrs {
				a[k] = v
			}
			a[resource.AttrBundleSymbolicName] = d.SymbolicName
			a[resource.AttrBundleVersion] = d.Version
			d.Capabilities = append(d.Capabilities, resource.NewCapability(resource.PackageNamespace, a,
				copyDirs(c.Directives, resource.DirectiveUses, resource.DirectiveMandatory, resource.DirectiveEffective)))
		}
	}
	return nil
}

func (d *Descriptor) parseImports() error {
	cs, err := d.clauses(HeaderImportPackage)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, c := range cs {
		for _, pkg := range c.Paths {
			if seen[pkg] {
				return headerError(HeaderImportPackage, nil, "package %s imported more than once", pkg)
			}
			seen[pkg] = true
			f, err := requirementFilter(HeaderImportPackage, resource.PackageNamespace, pkg, c, resource.AttrVersion)
			if err != nil {
				return err
			}
			d.Requirements = append(d.Requirements, resource.NewRequirement(resource.PackageNamespace, f,
				map[string]any{resource.PackageNamespace: pkg}, copyDirs(c.Directives, resource.DirectiveResolution)))
		}
	}
	return nil
}

func (d *Descriptor) parseDynamicImports() error {
	cs, err := d.clauses(HeaderDynamicImport)
	if err != nil {
		return err
	}
	for _, c := range cs {
		for _, pattern := range c.Paths {
			if strings.Contains(strings.TrimSuffix(pattern, "*"), "*") {
				return headerError(HeaderDynamicImport, nil, "invalid wildcard in %q", pattern)
			}
			f, err := requirementFilter(HeaderDynamicImport, "", "", c, resource.AttrVersion)
			if err != nil {
				return err
			}
			d.Requirements = append(d.Requirements, resource.NewRequirement(resource.PackageNamespace, f,
				map[string]any{resource.PackageNamespace: pattern},
				map[string]string{resource.DirectiveResolution: "dynamic", resource.DirectiveCardinality: "multiple"}))
		}
	}
	return nil
}

func (d *Descriptor) parseRequireBundle() error {
	cs, err := d.clauses(HeaderRequireBundle)
	if err != nil {
		return err
	}
	for _, c := range cs {
		for _, name := range c.Paths {
			f, err := requirementFilter(HeaderRequireBundle, resource.BundleNamespace, name, c, resource.AttrBundleVersion)
			if err != nil {
				return err
			}
			d.Requirements = append(d.Requirements, resource.NewRequirement(resource.BundleNamespace, f,
				map[string]any{resource.BundleNamespace: name},
				copyDirs(c.Directives, resource.DirectiveResolution, resource.DirectiveVisibility)))
		}
	}
	return nil
}

func (d *Descriptor) parseExecutionEnvironment() error {
	raw := strings.TrimSpace(d.Headers[HeaderRequiredEE])
	if raw == "" {
		return nil
	}
	var alts []string
	for _, ee := range strings.Split(raw, ",") {
		ee = strings.TrimSpace(ee)
		if ee == "" {
			continue
		}
		name, ver := SplitExecutionEnvironment(ee)
		if ver == "" {
			alts = append(alts, "("+resource.ExecutionEnvironmentNamespace+"="+name+")")
			continue
		}
		alts = append(alts, "(&("+resource.ExecutionEnvironmentNamespace+"="+name+")(version="+ver+"))")
	}
	expr := alts[0]
	if len(alts) > 1 {
		expr = "(|" + strings.Join(alts, "") + ")"
	}
	f, err := filter.Parse(expr)
	if err != nil {
		return headerError(HeaderRequiredEE, err, "invalid execution environment")
	}
	d.Requirements = append(d.Requirements, resource.NewRequirement(resource.ExecutionEnvironmentNamespace, f, nil, nil))
	return nil
}

// SplitExecutionEnvironment splits "GoRT-1.22" into ("GoRT", "1.22"). A name
// without a trailing version returns an empty version.
func SplitExecutionEnvironment(ee string) (name, ver string) {
	i := strings.LastIndex(ee, "-")
	if i <= 0 {
		return ee, ""
	}
	if _, err := version.Parse(ee[i+1:]); err != nil {
		return ee, ""
	}
	return ee[:i], ee[i+1:]
}

func (d *Descriptor) parseRequireCapability() error {
	cs, err := d.clauses(HeaderRequireCapability)
	if err != nil {
		return err
	}
	for _, c := range cs {
		var f *filter.Filter
		if raw := c.Directives[resource.DirectiveFilter]; raw != "" {
			f, err = filter.Parse(raw)
			if err != nil {
				return headerError(HeaderRequireCapability, err, "unparsable filter")
			}
		}
		attrs, err := typedAttributes(HeaderRequireCapability, c)
		if err != nil {
			return err
		}
		for _, ns := range c.Paths {
			d.Requirements = append(d.Requirements, resource.NewRequirement(ns, f, attrs, copyDirs(c.Directives)))
		}
	}
	return nil
}

func (d *Descriptor) parseProvideCapability() error {
	cs, err := d.clauses(HeaderProvideCapability)
	if err != nil {
		return err
	}
	for _, c := range cs {
		attrs, err := typedAttributes(HeaderProvideCapability, c)
		if err != nil {
			return err
		}
		for _, ns := range c.Paths {
			d.Capabilities = append(d.Capabilities, resource.NewCapability(ns, attrs, copyDirs(c.Directives)))
		}
	}
	return nil
}

func (d *Descriptor) parseClasspath() error {
	cs, err := d.clauses(HeaderClassPath)
	if err != nil {
		return err
	}
	for _, c := range cs {
		d.Classpath = append(d.Classpath, c.Paths...)
	}
	return nil
}

func (d *Descriptor) parseActivation() error {
	cs, err := d.clauses(HeaderActivationPolicy)
	if err != nil || len(cs) == 0 {
		return err
	}
	c := cs[0]
	if c.Paths[0] != "lazy" {
		return nil
	}
	d.Activation = resource.Activation{
		Lazy:    true,
		Include: splitCSV(c.Directives["include"]),
		Exclude: splitCSV(c.Directives["exclude"]),
	}
	return nil
}

// requirementFilter builds (&(ns=name)(range...)(attr=value)...) from a
// clause. rangeAttr names the attribute that carries a version range.
func requirementFilter(header, ns, name string, c Clause, rangeAttr string) (*filter.Filter, error) {
	var parts []string
	if ns != "" {
		parts = append(parts, "("+ns+"="+escapeFilterValue(name)+")")
	}
	for _, k := range sortedKeys(c.Attributes) {
		v := c.Attributes[k]
		switch k {
		case rangeAttr, resource.AttrVersion, resource.AttrBundleVersion, specificationVersionAttr:
			r, err := version.ParseRange(v)
			if err != nil {
				return nil, headerError(header, err, "malformed version range for %s", name)
			}
			key := k
			if k == specificationVersionAttr {
				key = resource.AttrVersion
			}
			parts = append(parts, r.FilterString(key))
		default:
			parts = append(parts, "("+k+"="+escapeFilterValue(v)+")")
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}
	expr := parts[0]
	if len(parts) > 1 {
		expr = "(&" + strings.Join(parts, "") + ")"
	}
	f, err := filter.Parse(expr)
	if err != nil {
		return nil, headerError(header, err, "unparsable filter for %s", name)
	}
	return f, nil
}

func escapeFilterValue(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`, `*`, `\*`)
	return r.Replace(s)
}

func copyDirs(dirs map[string]string, keep ...string) map[string]string {
	out := map[string]string{}
	if len(keep) == 0 {
		for k, v := range dirs {
			out[k] = v
		}
		return out
	}
	for _, k := range keep {
		if v, ok := dirs[k]; ok {
			out[k] = v
		}
	}
	return out
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
