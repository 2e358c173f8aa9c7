package resource

// Well-known namespaces.
const (
	PackageNamespace              = "osgi.wiring.package"
	BundleNamespace               = "osgi.wiring.bundle"
	HostNamespace                 = "osgi.wiring.host"
	IdentityNamespace             = "osgi.identity"
	ExecutionEnvironmentNamespace = "osgi.ee"
	NativeNamespace               = "osgi.native"
)

// Directive names.
const (
	DirectiveUses        = "uses"
	DirectiveMandatory   = "mandatory"
	DirectiveResolution  = "resolution"
	DirectiveCardinality = "cardinality"
	DirectiveFilter      = "filter"
	DirectiveSingleton   = "singleton"
	DirectiveVisibility  = "visibility"
	DirectiveEffective   = "effective"
)

// Attribute names.
const (
	AttrVersion            = "version"
	AttrBundleVersion      = "bundle-version"
	AttrBundleSymbolicName = "bundle-symbolic-name"
	AttrType               = "type"
)

// Attributes of the osgi.native namespace.
const (
	NativeOSName    = "osgi.native.osname"
	NativeOSVersion = "osgi.native.osversion"
	NativeProcessor = "osgi.native.processor"
	NativeLanguage  = "osgi.native.language"
)

// Identity types.
const (
	TypeBundle   = "osgi.bundle"
	TypeFragment = "osgi.fragment"
)

// Resolution is the resolution directive of a requirement.
type Resolution int

const (
	// ResolutionMandatory requires a wire for the revision to resolve.
	ResolutionMandatory Resolution = iota
	// ResolutionOptional is wired when a provider exists.
	ResolutionOptional
	// ResolutionDynamic is wired on demand during class loading.
	ResolutionDynamic
)

func (r Resolution) String() string {
	switch r {
	case ResolutionOptional:
		return "optional"
	case ResolutionDynamic:
		return "dynamic"
	default:
		return "mandatory"
	}
}

// Cardinality controls how many wires a requirement may have.
type Cardinality int

const (
	CardinalitySingle Cardinality = iota
	CardinalityMultiple
)

func (c Cardinality) String() string {
	if c == CardinalityMultiple {
		return "multiple"
	}
	return "single"
}
