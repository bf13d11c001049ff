package manifest

// Marker names understood by the template renderer.
const (
	MarkerLibsVer    = "LIBS_VER"
	MarkerBuildDir   = "ANDROID_BUILD"
	MarkerAPIVersion = "API_VERSION"
	MarkerGradlePath = "GRADLE_BIN_PATH"
	MarkerSDKPath    = "ANDROID_SDK_PATH"
)

var buildScriptMarkers = []string{MarkerBuildDir, MarkerAPIVersion, MarkerGradlePath, MarkerSDKPath}

// Default returns the manifest of the stock project: an emulator and a
// compatibility layer built on top of six support libraries.
func Default() *Manifest {
	return &Manifest{
		Template:    "DarkGalgame",
		Instance:    "DarkGalgame-dev",
		LibsVerFile: "LIBS_VER",
		Versions: map[string]string{
			"qemu":     "qemu-2.10.0",
			"wine":     "wine-2.16",
			"gettext":  "gettext-0.19.8.1",
			"glib":     "glib-2.54.0",
			"libffi":   "libffi-3.2.1",
			"libiconv": "libiconv-1.15",
			"libpng":   "libpng-1.6.32",
			"pcre":     "pcre-8.41",
		},
		ExternalClean: "build/external/clean.sh",
		CreateClean:   []string{"build/external/external.sh", "clean"},
		Libraries: []Library{
			{
				Name:      "gettext",
				Group:     GroupExternal,
				Source:    "build/external/src/${gettext}",
				PatchFile: "build/external/patches/gettext.patch",
				Files:     []string{"gettext-tools/libgrep/nl_langinfo.c"},
			},
			{
				Name:      "glib",
				Group:     GroupExternal,
				Source:    "build/external/src/${glib}",
				PatchFile: "build/external/patches/glib.patch",
				Files:     []string{"android.cache"},
			},
			{
				Name:      "qemu",
				Group:     GroupMain,
				Source:    "src/${qemu}",
				PatchFile: "src/patches/qemu.patch",
				Files:     []string{"configure", "Makefile", "linux-user/syscall.c"},
			},
		},
		Components: []Component{
			externalComponent("libiconv"),
			externalComponent("gettext"),
			externalComponent("libffi"),
			externalComponent("pcre"),
			externalComponent("glib"),
			externalComponent("libpng"),
			{Name: "qemu", Group: GroupMain, Source: "src/${qemu}", Script: "build/build-scripts/qemu-android-build.sh"},
			{Name: "wine", Group: GroupMain, Source: "src/${wine}", Script: "build/build-scripts/wine-android-build.sh"},
		},
		Templates: []TemplateFile{
			{Path: "tools/patch.py", Markers: []string{MarkerLibsVer}, Optional: true},
			{Path: "tools/build.py", Markers: []string{MarkerLibsVer}, Optional: true},
			{Path: "build/external/external.sh", Markers: []string{MarkerBuildDir}, Optional: true},
			{Path: "build/build-scripts/qemu-android-build.sh", Markers: buildScriptMarkers},
			{Path: "build/build-scripts/wine-android-build.sh", Markers: buildScriptMarkers},
			{Path: "build/external/build-scripts/gettext-android-build.sh", Markers: buildScriptMarkers},
			{Path: "build/external/build-scripts/glib-android-build.sh", Markers: buildScriptMarkers},
			{Path: "build/external/build-scripts/libffi-android-build.sh", Markers: buildScriptMarkers},
			{Path: "build/external/build-scripts/libiconv-android-build.sh", Markers: buildScriptMarkers},
			{Path: "build/external/build-scripts/libpng-android-build.sh", Markers: buildScriptMarkers},
			{Path: "build/external/build-scripts/pcre-android-build.sh", Markers: buildScriptMarkers},
		},
		Toolchain: Toolchain{
			Script:     "build/tools/make_standalone_toolchain.py",
			InstallDir: "build/android",
			Arch:       "arm",
			ExtraArgs:  []string{"--force", "--unified-headers"},
		},
	}
}

func externalComponent(name string) Component {
	return Component{
		Name:   name,
		Group:  GroupExternal,
		Source: "build/external/src/${" + name + "}",
		Script: "build/external/build-scripts/" + name + "-android-build.sh",
	}
}
