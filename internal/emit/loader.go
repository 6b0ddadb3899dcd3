// SPDX-License-Identifier: MPL-2.0

package emit

import "strings"

// LoadFunc is the name of the loader function defined by the preamble.
const LoadFunc = "__load_chunk__"

// loaderTemplate is the runtime stub embedded in the default chunk.
//
// A chunk executes in the namespace of its caller, so names defined by a
// loaded chunk and by the default chunk see each other at call time. Loads
// are memoized by logical chunk name; the entry is recorded before the chunk
// runs so a chunk that loads its own loader back does not recurse.
const loaderTemplate = `__pychunk_chunks__ = {}


def __pychunk_find__(name, logical):
    import glob
    import json
    import os

    if "__file__" in globals():
        base = os.path.dirname(os.path.abspath(__file__))
    else:
        base = os.getcwd()
    if name != logical:
        path = os.path.join(base, name + ".@EXT@")
        if os.path.isfile(path):
            return path
    manifest = os.path.join(base, "manifest.json")
    if os.path.isfile(manifest):
        with open(manifest, encoding="utf-8") as f:
            hashed = json.load(f).get("fileMap", {}).get(logical + ".@EXT@")
        if hashed and os.path.isfile(os.path.join(base, hashed)):
            return os.path.join(base, hashed)
    found = sorted(glob.glob(os.path.join(base, glob.escape(logical) + ".*.@EXT@")))
    if found:
        return found[-1]
    raise ImportError("chunk %r not found in %s" % (logical, base))


def __load_chunk__(name, namespace=None):
    import re
    import types

    logical = re.sub(r"\.[0-9a-f]{8}$", "", name)
    chunk = __pychunk_chunks__.get(logical)
    if chunk is not None:
        return chunk
    if namespace is None:
        namespace = globals()
    path = __pychunk_find__(name, logical)
    chunk = types.SimpleNamespace(__name__=logical, __file__=path)
    __pychunk_chunks__[logical] = chunk
    before = set(namespace)
    with open(path, encoding="utf-8") as f:
        code = compile(f.read(), path, "exec")
    exec(code, namespace)
    for key in set(namespace) - before:
        setattr(chunk, key, namespace[key])
    return chunk`

// LoaderPreamble returns the loader stub for chunk files with the given
// extension.
func LoaderPreamble(ext string) string {
	return strings.ReplaceAll(loaderTemplate, "@EXT@", ext)
}

func loadCall(ref string) string {
	return LoadFunc + `("` + ref + `", globals())`
}
