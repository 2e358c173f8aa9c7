package modrt

import (
	"fmt"
	"maps"
	"runtime"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/albertocavalcante/go-modrt/container"
	"github.com/albertocavalcante/go-modrt/manifest"
	"github.com/albertocavalcante/go-modrt/resolver"
)

// Config holds framework properties. Keys not listed below are passed
// through to bundles unchanged.
type Config map[string]string

// Framework property keys.
const (
	PropStorage              = "framework.storage"
	PropStorageClean         = "framework.storage.clean"
	PropBeginningStartLevel  = "framework.beginning.startlevel"
	PropSystemPackagesExtra  = "framework.system.packages.extra"
	PropBootDelegation       = "framework.bootdelegation"
	PropBundleParent         = "framework.bundle.parent"
	PropOSName               = resolver.PropOSName
	PropOSVersion            = resolver.PropOSVersion
	PropProcessor            = resolver.PropProcessor
	PropLanguage             = resolver.PropLanguage
	PropRuntimeVersion       = "framework.runtime.version"
	PropExecutionEnvironment = "framework.executionenvironment"
	PropStartLevelWorkers    = "framework.startlevel.workers"
	PropUUID                 = container.PropUUID
	PropVersion              = "framework.version"
)

// Values of PropStorageClean.
const (
	CleanNone        = "none"
	CleanOnFirstInit = "onFirstInit"
)

// Values of PropBundleParent.
const (
	ParentBoot      = "boot"
	ParentFramework = "framework"
	ParentApp       = "app"
)

// Defaults.
const (
	DefaultBeginningStartLevel = 1
	DefaultBootDelegation      = "go.*"
	DefaultRuntimeVersion      = "11"
	DefaultLanguage            = "en"

	// eeName is the execution environment family provided by the system
	// bundle.
	eeName = "GoRT"
)

// settings is the typed form of a Config.
type settings struct {
	props          map[string]string
	storageDir     string
	cleanOnFirst   bool
	beginningLevel int
	extraPackages  string
	bootDelegation []string
	parent         string
	runtime        *semver.Version
	ee             []string
	workers        int
}

// parseConfig applies defaults and validates every known property.
func parseConfig(cfg Config) (*settings, error) {
	props := maps.Clone(map[string]string(cfg))
	if props == nil {
		props = make(map[string]string)
	}
	setDefault := func(key, value string) {
		if strings.TrimSpace(props[key]) == "" {
			props[key] = value
		}
	}
	setDefault(PropStorageClean, CleanNone)
	setDefault(PropBeginningStartLevel, fmt.Sprint(DefaultBeginningStartLevel))
	setDefault(PropBootDelegation, DefaultBootDelegation)
	setDefault(PropBundleParent, ParentBoot)
	setDefault(PropOSName, runtime.GOOS)
	setDefault(PropProcessor, runtime.GOARCH)
	setDefault(PropLanguage, DefaultLanguage)
	setDefault(PropRuntimeVersion, DefaultRuntimeVersion)
	setDefault(PropStartLevelWorkers, fmt.Sprint(container.DefaultStartLevelWorkers))
	setDefault(PropUUID, uuid.NewString())
	props[PropVersion] = Version

	s := &settings{
		props:         props,
		storageDir:    strings.TrimSpace(props[PropStorage]),
		extraPackages: strings.TrimSpace(props[PropSystemPackagesExtra]),
		parent:        props[PropBundleParent],
	}

	switch props[PropStorageClean] {
	case CleanNone:
	case CleanOnFirstInit:
		s.cleanOnFirst = true
	default:
		return nil, configError(PropStorageClean, props[PropStorageClean], "must be %q or %q", CleanNone, CleanOnFirstInit)
	}

	level, err := cast.ToIntE(props[PropBeginningStartLevel])
	if err != nil || level < 1 {
		return nil, configError(PropBeginningStartLevel, props[PropBeginningStartLevel], "must be a positive integer")
	}
	s.beginningLevel = level

	workers, err := cast.ToIntE(props[PropStartLevelWorkers])
	if err != nil || workers < 1 {
		return nil, configError(PropStartLevelWorkers, props[PropStartLevelWorkers], "must be a positive integer")
	}
	s.workers = workers

	switch s.parent {
	case ParentBoot, ParentFramework, ParentApp:
	default:
		return nil, configError(PropBundleParent, s.parent, "must be one of %s, %s, %s", ParentBoot, ParentFramework, ParentApp)
	}

	for _, p := range strings.Split(props[PropBootDelegation], ",") {
		if p = strings.TrimSpace(p); p != "" {
			s.bootDelegation = append(s.bootDelegation, p)
		}
	}

	rv, err := semver.NewVersion(props[PropRuntimeVersion])
	if err != nil {
		return nil, configError(PropRuntimeVersion, props[PropRuntimeVersion], "%v", err)
	}
	if rv.Major() == 0 {
		return nil, configError(PropRuntimeVersion, props[PropRuntimeVersion], "major version must be at least 1")
	}
	s.runtime = rv
	setDefault(PropExecutionEnvironment, defaultExecutionEnvironments(rv))

	for _, ee := range strings.Split(props[PropExecutionEnvironment], ",") {
		if ee = strings.TrimSpace(ee); ee != "" {
			s.ee = append(s.ee, ee)
		}
	}
	return s, nil
}

// runtimeVersion returns the major runtime version used for multi-release
// selection.
func (s *settings) runtimeVersion() int {
	return int(s.runtime.Major())
}

// defaultExecutionEnvironments lists GoRT-1.0 through GoRT-<major>.0 for
// the runtime version.
func defaultExecutionEnvironments(rv *semver.Version) string {
	ees := make([]string, 0, rv.Major())
	for major := uint64(1); major <= rv.Major(); major++ {
		ees = append(ees, fmt.Sprintf("%s-%d.0", eeName, major))
	}
	return strings.Join(ees, ",")
}

// eeCapabilities renders execution environments as Provide-Capability
// clauses, one per environment name with its versions as a list.
func eeCapabilities(ees []string) string {
	versions := make(map[string][]string)
	var names []string
	for _, ee := range ees {
		name, ver := manifest.SplitExecutionEnvironment(ee)
		if _, ok := versions[name]; !ok {
			names = append(names, name)
			versions[name] = nil
		}
		if ver != "" && !slices.Contains(versions[name], ver) {
			versions[name] = append(versions[name], ver)
		}
	}

	clauses := make([]string, 0, len(names))
	for _, name := range names {
		clause := fmt.Sprintf("osgi.ee;osgi.ee=%q", name)
		if vs := versions[name]; len(vs) > 0 {
			clause += fmt.Sprintf(";version:List<Version>=%q", strings.Join(vs, ","))
		}
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, ",")
}
