// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hookgen // import "github.com/modhook/modhook/hookgen"

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// Unit names the generated artifacts of one source file.
type Unit struct {
	// Hash is the xxh3 hash of the source path relative to the source root.
	Hash uint64
	// RelPath is the slash separated source path relative to the root.
	RelPath string

	ModID string
	// Namespace holds the per-file binding classes.
	Namespace string
	// Utilities is the class holding the builtin resolvers.
	Utilities string
	// Class is the per-file binding class name, ClassPath its qualified
	// name.
	Class     string
	ClassPath string
	// RegisterHooks and ModLoaderInit are the per-file entry points on the
	// mod class.
	RegisterHooks string
	ModLoaderInit string
	// HostFile is the name of the generated host file.
	HostFile string
}

// NewUnit derives the names of the unit for the source file at relPath.
func NewUnit(modID, relPath string) Unit {
	return newUnit(modID, relPath, xxh3.HashString(relPath))
}

func newUnit(modID, relPath string, hash uint64) Unit {
	ns := modID + ".ReloadedFFI.Hooks"
	class := fmt.Sprintf("Hooks_%X", hash)
	return Unit{
		Hash:          hash,
		RelPath:       relPath,
		ModID:         modID,
		Namespace:     ns,
		Utilities:     modID + ".ReloadedFFI.Utilities",
		Class:         class,
		ClassPath:     ns + "." + class,
		RegisterHooks: fmt.Sprintf("RegisterHooks_%X", hash),
		ModLoaderInit: fmt.Sprintf("ModLoaderInit_%X", hash),
		HostFile:      hostFileName(hash),
	}
}

func hostFileName(hash uint64) string {
	return fmt.Sprintf("%X.g.cs", hash)
}

// Names holds every identifier generated for one hooked item. Each is
// built from the item name and the unit, never from another identifier.
type Names struct {
	Item string

	// Native side.
	Slot   string
	Setter string
	// Body is the hook body when an export shim takes the item name.
	Body          string
	CallWrapper   string
	UserCallback  string
	UserSetter    string
	CreateWrapper string
	VtableSlot    string
	VtableSetter  string

	// Host side.
	HookField    string
	AsmField     string
	Delegate     string
	DelegatePath string
	FunctionPath string
	SetterPath   string
	UserDefined  string
	ScanName     string

	classPath string
}

func newNames(u Unit, item string) Names {
	return Names{
		Item:          item,
		Slot:          "__hook_ogfn_" + item,
		Setter:        "__hook_set_" + item,
		Body:          "__hook_body_" + item,
		CallWrapper:   "__hook_call_" + item,
		UserCallback:  "__hook_user_cb_" + item,
		UserSetter:    "__hook_user_set_" + item,
		CreateWrapper: "__hook_create_" + item,
		VtableSlot:    "__hook_vtbl_" + item,
		VtableSetter:  "__hook_set_vtbl_" + item,
		HookField:     "_" + item,
		AsmField:      "_" + item + "_ASM",
		Delegate:      item + "Delegate",
		DelegatePath:  u.ClassPath + "." + item + "Delegate",
		FunctionPath:  u.ClassPath + "." + item,
		SetterPath:    u.ClassPath + ".__hook_set_" + item,
		UserDefined:   "UserDefined_" + item,
		ScanName:      item,
		classPath:     u.ClassPath,
	}
}

// WrapField is the reverse wrapper field of an inline hook branch.
func (n Names) WrapField(suffix string) string {
	return "_" + n.Item + "_WRAP" + suffix
}

// BranchDelegate is the per-branch delegate type of an inline hook.
func (n Names) BranchDelegate(suffix string) string {
	return n.Item + "Delegate" + suffix
}

// BranchDelegatePath is the qualified per-branch delegate type.
func (n Names) BranchDelegatePath(suffix string) string {
	return n.classPath + "." + n.Item + "Delegate" + suffix
}
