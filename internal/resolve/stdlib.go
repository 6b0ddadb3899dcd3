// SPDX-License-Identifier: MPL-2.0

package resolve

import "strings"

// stdlib holds the top-level names of the Python 3 standard library and
// builtin modules.
var stdlib = toSet(`
__future__ __main__ _abc _ast _asyncio _bisect _blake2 _bz2 _codecs _collections
_collections_abc _compat_pickle _contextvars _csv _ctypes _datetime _decimal
_functools _hashlib _heapq _imp _io _json _locale _lsprof _lzma _md5 _operator
_pickle _posixsubprocess _queue _random _sha1 _sha256 _sha512 _signal _socket
_sqlite3 _sre _ssl _stat _string _struct _thread _threading_local _tracemalloc
_typing _warnings _weakref _weakrefset abc aifc antigravity argparse array ast
asynchat asyncio asyncore atexit audioop base64 bdb binascii bisect builtins bz2
cProfile calendar cgi cgitb chunk cmath cmd code codecs codeop collections
colorsys compileall concurrent configparser contextlib contextvars copy copyreg
crypt csv ctypes curses dataclasses datetime dbm decimal difflib dis distutils
doctest email encodings ensurepip enum errno faulthandler fcntl filecmp fileinput
fnmatch fractions ftplib functools gc genericpath getopt getpass gettext glob
graphlib grp gzip hashlib heapq hmac html http idlelib imaplib imghdr imp
importlib inspect io ipaddress itertools json keyword lib2to3 linecache locale
logging lzma mailbox mailcap marshal math mimetypes mmap modulefinder msilib
msvcrt multiprocessing netrc nis nntplib nt ntpath nturl2path numbers opcode
operator optparse os ossaudiodev pathlib pdb pickle pickletools pipes pkgutil
platform plistlib poplib posix posixpath pprint profile pstats pty pwd py_compile
pyclbr pydoc pydoc_data pyexpat queue quopri random re readline reprlib
resource rlcompleter runpy sched secrets select selectors shelve shlex shutil
signal site smtpd smtplib sndhdr socket socketserver spwd sqlite3 sre_compile
sre_constants sre_parse ssl stat statistics string stringprep struct subprocess
sunau symtable sys sysconfig syslog tabnanny tarfile telnetlib tempfile termios
textwrap this threading time timeit tkinter token tokenize tomllib trace
traceback tracemalloc tty turtle turtledemo types typing unicodedata unittest
urllib uu uuid venv warnings wave weakref webbrowser winreg winsound wsgiref
xdrlib xml xmlrpc zipapp zipfile zipimport zlib zoneinfo
`)

// IsStdlib reports whether name (a dotted module path or its top-level
// segment) belongs to the Python standard library.
func IsStdlib(name string) bool {
	top, _, _ := strings.Cut(name, ".")
	return stdlib[top]
}

// StandardPredicate returns IsStdlib extended with extra top-level names.
func StandardPredicate(extra ...string) func(string) bool {
	if len(extra) == 0 {
		return IsStdlib
	}
	more := make(map[string]bool, len(extra))
	for _, name := range extra {
		more[name] = true
	}
	return func(name string) bool {
		top, _, _ := strings.Cut(name, ".")
		return stdlib[top] || more[top]
	}
}

func toSet(list string) map[string]bool {
	fields := strings.Fields(list)
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
