package sys

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// TestFileOperations covers OpenFile for the platform-specific File implementation.
func TestFileOperations(t *testing.T) {
	fileOpener := NewFile()
	if fileOpener == nil {
		t.Fatal("NewFile() returned nil")
	}

	tempDir := t.TempDir()
	testFilePath := filepath.Join(tempDir, "testfile.txt")

	t.Run("CreateAndWrite", func(t *testing.T) {
		file, err := fileOpener.OpenFile(testFilePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			t.Fatalf("OpenFile for writing failed: %v", err)
		}

		writeData := []byte("hello world")
		_, err = file.Write(writeData)
		if err != nil {
			file.Close()
			t.Fatalf("Write failed: %v", err)
		}

		err = file.Close()
		if err != nil {
			t.Fatalf("Close after write failed: %v", err)
		}

		verifyFile, err := fileOpener.OpenFile(testFilePath, os.O_RDONLY, 0)
		if err != nil {
			t.Fatalf("Failed to open file for verification: %v", err)
		}
		defer verifyFile.Close()

		readData, err := io.ReadAll(verifyFile)
		if err != nil {
			t.Fatalf("ReadFile after write failed: %v", err)
		}
		if !bytes.Equal(readData, writeData) {
			t.Errorf("Read data mismatch: got %q, want %q", string(readData), string(writeData))
		}
	})

	t.Run("ReadExisting", func(t *testing.T) {
		file, err := fileOpener.OpenFile(testFilePath, os.O_RDONLY, 0)
		if err != nil {
			t.Fatalf("OpenFile for reading failed: %v", err)
		}
		defer file.Close()

		readData := make([]byte, 11) // "hello world" is 11 bytes
		_, err = file.Read(readData)
		if err != nil && err != io.EOF {
			t.Fatalf("Read failed: %v", err)
		}

		expectedData := []byte("hello world")
		if !bytes.Equal(readData, expectedData) {
			t.Errorf("Read data mismatch: got %q, want %q", string(readData), string(expectedData))
		}
	})

	t.Run("Append", func(t *testing.T) {
		file, err := fileOpener.OpenFile(testFilePath, os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			t.Fatalf("OpenFile for appending failed: %v", err)
		}

		appendData := []byte(" again")
		_, err = file.Write(appendData)
		if err != nil {
			file.Close()
			t.Fatalf("Append write failed: %v", err)
		}

		err = file.Close()
		if err != nil {
			t.Fatalf("Close after append failed: %v", err)
		}

		verifyFile, err := fileOpener.OpenFile(testFilePath, os.O_RDONLY, 0)
		if err != nil {
			t.Fatalf("Failed to open file for verification after append: %v", err)
		}
		defer verifyFile.Close()

		readData, err := io.ReadAll(verifyFile)
		if err != nil {
			t.Fatalf("ReadAll after append failed: %v", err)
		}

		expectedData := []byte("hello world again")
		if !bytes.Equal(readData, expectedData) {
			t.Errorf("Read data after append mismatch: got %q, want %q", string(readData), string(expectedData))
		}
	})

	t.Run("OpenNonExistentFails", func(t *testing.T) {
		_, err := fileOpener.OpenFile(filepath.Join(tempDir, "does_not_exist.txt"), os.O_RDONLY, 0)
		if !os.IsNotExist(err) {
			t.Errorf("expected ErrNotExist, got %v", err)
		}
	})
}
