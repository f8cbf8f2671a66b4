package parser

import "fmt"

type inodeKey struct {
	attr_type uint32
	attr_id   uint16
}

// Formats the inode strings (entry-type-id) of the attributes of one
// file entry. Pieces from extension records may reuse an attribute
// id, so a repeated type and id is told apart by the stream name.
type InodeFormatter struct {
	seen map[inodeKey]bool
}

func (self *InodeFormatter) Inode(mft_id int64, attr *Attribute) string {
	if self.seen == nil {
		self.seen = make(map[inodeKey]bool)
	}

	key := inodeKey{attr_type: attr.Type(), attr_id: attr.Identifier()}
	inode := fmt.Sprintf("%d-%d-%d", mft_id, key.attr_type, key.attr_id)

	if self.seen[key] && attr.Name() != "" {
		return inode + ":" + attr.Name()
	}
	self.seen[key] = true
	return inode
}
