// Package media confines filesystem access to the configured media root.
//
// Every path a client supplies is relative to the root and goes through
// Resolver.Resolve, which rejects parent-directory segments and backslashes
// before touching the disk, then canonicalises the joined path (symlinks
// included) and requires the result to stay inside the root. Anything else
// is an access-denied PathError; the client never learns whether the path
// exists.
//
// Browse lists a directory as folders and media files (images and videos by
// extension), without dotfiles, sorted folders first and alphabetically
// within each group. CreateFolder and SaveUpload write beneath a resolved
// directory and never overwrite.
package media
